package web

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"sealbot/core"
)

// ServerConfig Web服务器配置
type ServerConfig struct {
	SecretPath string // 秘密访问路径
	Password   string // 访问密码
}

// Server 运行监控面板
// 只订阅EventBus的日志/状态两个通道，核心逻辑对展示层零依赖
type Server struct {
	bus        *core.Bus
	stats      *core.Stats
	logger     *zap.Logger
	config     ServerConfig
	authedSess sync.Map
}

// NewServer 创建Web服务器并订阅事件总线
func NewServer(bus *core.Bus, stats *core.Stats, logger *zap.Logger, config ServerConfig) *Server {
	if config.SecretPath == "" {
		config.SecretPath = "admin"
	}
	return &Server{
		bus:    bus,
		stats:  stats,
		logger: logger,
		config: config,
	}
}

// Start 启动服务器 (阻塞)
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	secretBase := "/" + s.config.SecretPath
	mux.HandleFunc(secretBase, s.authMiddleware(s.handleIndex))
	mux.HandleFunc(secretBase+"/", s.authMiddleware(s.handleIndex))
	mux.HandleFunc(secretBase+"/api/stats", s.authMiddleware(s.handleStats))
	mux.HandleFunc(secretBase+"/api/logs", s.authMiddleware(s.handleLogs))
	mux.HandleFunc(secretBase+"/api/system", s.authMiddleware(s.handleSystem))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	s.logger.Info("🌐 Web监控面板启动",
		zap.Int("port", port),
		zap.String("path", secretBase))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// authMiddleware 密码认证，通过后发放session cookie
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("auth_token"); err == nil {
			if _, ok := s.authedSess.Load(cookie.Value); ok {
				next(w, r)
				return
			}
		}

		password := r.URL.Query().Get("pwd")
		if password == "" {
			password = r.FormValue("password")
		}
		if s.config.Password != "" &&
			subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password)) == 1 {
			token := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
			s.authedSess.Store(token, true)
			http.SetCookie(w, &http.Cookie{
				Name:     "auth_token",
				Value:    token,
				Path:     "/" + s.config.SecretPath,
				MaxAge:   86400,
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			next(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(loginHTML))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := s.bus.Status()
	out := map[string]interface{}{
		"current_time":      time.Now().Format("2006-01-02 15:04:05"),
		"uptime":            time.Since(s.stats.StartTime).Round(time.Second).String(),
		"loaded_wallet":     status.LoadedWallet,
		"wallet_index":      status.WalletIndex,
		"total_wallets":     status.TotalWallets,
		"active_bots":       status.ActiveBots,
		"overall_status":    status.OverallStatus,
		"wallets_loaded":    s.stats.WalletsLoaded.Load(),
		"wallets_processed": s.stats.WalletsProcessed.Load(),
		"wallets_failed":    s.stats.WalletsFailed.Load(),
		"workflows_run":     s.stats.WorkflowsRun.Load(),
		"workflows_success": s.stats.WorkflowsSuccess.Load(),
		"workflows_failed":  s.stats.WorkflowsFailed.Load(),
		"tx_submitted":      s.stats.TxSubmitted.Load(),
		"tx_success":        s.stats.TxSuccess.Load(),
		"tx_failed":         s.stats.TxFailed.Load(),
		"upload_attempts":   s.stats.UploadAttempts.Load(),
		"upload_success":    s.stats.UploadSuccess.Load(),
		"upload_failed":     s.stats.UploadFailed.Load(),
		"blob_bytes":        s.stats.BlobBytes.Load(),
	}
	json.NewEncoder(w).Encode(out)
}

// handleLogs 返回事件总线缓冲中最新的事件
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	events := s.bus.History()
	level := r.URL.Query().Get("level")
	if level != "" && level != "all" {
		var filtered []core.LogEvent
		for _, ev := range events {
			if string(ev.Level) == level {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	// 只返回最新100条
	if len(events) > 100 {
		events = events[len(events)-100:]
	}
	json.NewEncoder(w).Encode(events)
}

// handleSystem 服务器系统监控数据
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	result := map[string]interface{}{
		"cpu_cores":  runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"pid":        os.Getpid(),
	}
	result["hostname"], _ = os.Hostname()

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		result["cpu_percent"] = cpuPercent[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		result["mem_total"] = memInfo.Total
		result["mem_used"] = memInfo.Used
		result["mem_percent"] = memInfo.UsedPercent
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	result["go_alloc"] = memStats.Alloc
	result["go_sys"] = memStats.Sys
	result["go_gc_num"] = memStats.NumGC

	json.NewEncoder(w).Encode(result)
}
