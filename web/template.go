package web

// loginHTML 登录页
const loginHTML = `<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>登录</title>
<style>
body{background:#0d1117;color:#c9d1d9;font-family:monospace;display:flex;justify-content:center;align-items:center;height:100vh;margin:0}
.box{background:#161b22;padding:40px;border-radius:8px;border:1px solid #30363d}
input{background:#0d1117;color:#c9d1d9;border:1px solid #30363d;padding:8px;border-radius:4px;width:220px}
button{background:#238636;color:#fff;border:none;padding:8px 20px;border-radius:4px;margin-top:12px;cursor:pointer}
</style>
</head>
<body>
<div class="box">
<h3>🔐 访问验证</h3>
<form method="post">
<input type="password" name="password" placeholder="密码" autofocus><br>
<button type="submit">进入</button>
</form>
</div>
</body>
</html>`

// indexHTML 监控面板主页
const indexHTML = `<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>Seal任务监控</title>
<style>
body{background:#0d1117;color:#c9d1d9;font-family:monospace;margin:0;padding:20px}
h2{color:#58a6ff}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(220px,1fr));gap:12px;margin-bottom:20px}
.card{background:#161b22;border:1px solid #30363d;border-radius:8px;padding:14px}
.card .label{color:#8b949e;font-size:12px}
.card .value{font-size:22px;margin-top:4px}
#logs{background:#161b22;border:1px solid #30363d;border-radius:8px;padding:14px;height:360px;overflow-y:auto;font-size:13px}
.log-ERROR{color:#f85149}.log-WARN{color:#d29922}.log-SUCCESS{color:#3fb950}.log-WAIT{color:#58a6ff}.log-DEBUG{color:#8b949e}
</style>
</head>
<body>
<h2>🤖 Seal任务监控面板</h2>
<div class="grid" id="stats"></div>
<h2>📜 事件日志</h2>
<div id="logs"></div>
<script>
const fields=[
 ["overall_status","状态"],["loaded_wallet","当前钱包"],
 ["wallet_index","钱包进度"],["workflows_run","工作流执行"],
 ["workflows_success","工作流成功"],["workflows_failed","工作流失败"],
 ["tx_submitted","交易提交"],["tx_success","交易成功"],["tx_failed","交易失败"],
 ["upload_attempts","上传尝试"],["upload_success","上传成功"],["blob_bytes","上传字节"],
 ["uptime","运行时间"],["cpu_percent","CPU%"],["mem_percent","内存%"]
];
async function refresh(){
 try{
  const s=await (await fetch("api/stats")).json();
  const sys=await (await fetch("api/system")).json();
  const all={...s,...sys};
  if(all.wallet_index!==undefined)all.wallet_index=all.wallet_index+"/"+all.total_wallets;
  document.getElementById("stats").innerHTML=fields.map(([k,label])=>
   '<div class="card"><div class="label">'+label+'</div><div class="value">'+
   (all[k]===undefined?"-":(typeof all[k]==="number"?all[k].toFixed?Math.round(all[k]*100)/100:all[k]:all[k]))+'</div></div>').join("");
  const logs=await (await fetch("api/logs")).json();
  document.getElementById("logs").innerHTML=(logs||[]).map(e=>
   '<div class="log-'+e.level+'">'+new Date(e.timestamp).toLocaleTimeString()+" "+(e.icon||"")+" "+e.message+'</div>').join("");
 }catch(e){}
}
refresh();setInterval(refresh,3000);
</script>
</body>
</html>`
