package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/database"
	"sealbot/executor"
	"sealbot/proxy"
	"sealbot/sui"
	"sealbot/walrus"
	"sealbot/web"
)

func main() {
	// .env优先加载，不存在时静默跳过
	_ = godotenv.Load()

	logLevel := core.GetEnv("LOG_LEVEL", "info")
	var logger *zap.Logger
	if logLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("🚀 启动Seal批量任务系统",
		zap.String("workflow", core.GetEnv("WORKFLOW", executor.WorkflowAllowlist)),
		zap.String("package", core.GetEnv("PACKAGE_ID", "")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ==================== 事件总线 ====================
	// 所有组件只向总线上报，控制台/面板作为订阅者挂在外面
	bus := core.NewBus()
	bus.Subscribe(consoleSink(logger))

	stats := core.NewStats(logger)
	stats.StartReporter(time.Duration(core.GetEnvInt64("STATS_INTERVAL_SECONDS", 60)) * time.Second)
	defer stats.Stop()

	// ==================== 钱包列表 (致命前置条件) ====================
	wallets, err := core.LoadLines(core.GetEnv("WALLETS_FILE", "wallets.txt"))
	if err != nil {
		logger.Fatal("读取钱包列表失败", zap.Error(err))
	}
	if len(wallets) == 0 {
		logger.Fatal("钱包列表为空，无法启动")
	}
	logger.Info("✅ 钱包列表加载完成", zap.Int("count", len(wallets)))

	// ==================== 代理列表 (可选) ====================
	var proxies []string
	proxyFile := core.GetEnv("PROXY_FILE", "proxy.txt")
	if lines, err := core.LoadLines(proxyFile); err == nil {
		proxies = lines
		logger.Info("✅ 代理列表加载完成", zap.Int("count", len(proxies)))
	} else {
		logger.Info("⚠️ 未配置代理，直连模式")
	}
	rotator := proxy.NewRotator(proxies, logger)

	// ==================== 发布端点 (致命前置条件) ====================
	publishers := core.SplitList(core.GetEnv("PUBLISHERS", ""))
	uploader, err := walrus.NewUploader(walrus.UploaderConfig{
		Publishers:   publishers,
		MaxRetries:   int(core.GetEnvInt64("UPLOAD_MAX_RETRIES", 5)),
		InitialDelay: time.Duration(core.GetEnvInt64("UPLOAD_RETRY_DELAY_SECONDS", 2)) * time.Second,
		MaxDelay:     time.Duration(core.GetEnvInt64("UPLOAD_RETRY_MAX_SECONDS", 30)) * time.Second,
	}, rotator, bus, stats, logger)
	if err != nil {
		logger.Fatal("未配置存储发布端点 (PUBLISHERS)", zap.Error(err))
	}
	logger.Info("✅ 上传器初始化", zap.Int("端点数", len(publishers)))

	// ==================== 链客户端 ====================
	rpcURLs := core.SplitList(core.GetEnv("RPC_URLS", "https://fullnode.testnet.sui.io:443"))
	chainClient, err := sui.NewClient(rpcURLs, rotator, logger)
	if err != nil {
		logger.Fatal("链客户端初始化失败", zap.Error(err))
	}

	exec := executor.NewExecutor(chainClient, bus, stats, logger,
		uint64(core.GetEnvInt64("GAS_BUDGET", 10_000_000)))

	// ==================== 工作流引擎 ====================
	var extraAddrs []string
	if lines, err := core.LoadLines(core.GetEnv("ADDRESSES_FILE", "addresses.txt")); err == nil {
		extraAddrs = lines
	}

	content := walrus.ContentSpec{Ref: core.GetEnv("CONTENT_REF", "content.jpg")}
	if inline := core.GetEnv("CONTENT_DATA", ""); inline != "" {
		content = walrus.ContentSpec{Data: []byte(inline)}
	}

	dedup := core.NewAddressDedup(core.DefaultDedupConfig(), logger)
	engine, err := executor.NewEngine(executor.WorkflowConfig{
		Kind:           core.GetEnv("WORKFLOW", executor.WorkflowAllowlist),
		PackageID:      core.GetEnv("PACKAGE_ID", ""),
		EntryName:      core.GetEnv("ENTRY_NAME", "sealbot"),
		ExtraAddresses: extraAddrs,
		Epochs:         int(core.GetEnvInt64("EPOCHS", 1)),
		SubAmount:      uint64(core.GetEnvInt64("SUB_AMOUNT", 10_000_000)),
		SubDuration:    uint64(core.GetEnvInt64("SUB_DURATION_MINUTES", 60)),
		Content:        content,
	}, exec, uploader, walrus.NewContentSource(rotator, logger), dedup, bus, logger)
	if err != nil {
		logger.Fatal("工作流引擎初始化失败", zap.Error(err))
	}

	// ==================== 结果流水账 (可选) ====================
	var sink executor.ResultSink
	if dsn := core.GetEnv("POSTGRES_DSN", ""); dsn != "" {
		store, err := database.NewResultStore(ctx, dsn, logger)
		if err != nil {
			logger.Warn("⚠️ 结果流水账连接失败，跳过落库", zap.Error(err))
		} else {
			defer store.Close()
			sink = store
		}
	}

	// ==================== Web面板 ====================
	webPort := int(core.GetEnvInt64("WEB_PORT", 8083))
	webServer := web.NewServer(bus, stats, logger, web.ServerConfig{
		SecretPath: core.GetEnv("WEB_SECRET_PATH", "admin"),
		Password:   core.GetEnv("WEB_PASSWORD", "changeme"),
	})
	go func() {
		if err := webServer.Start(webPort); err != nil {
			logger.Error("Web server error", zap.Error(err))
		}
	}()

	// ==================== 启动提示 ====================
	repetitions := core.PromptRepetitions(os.Stdin, os.Stdout)
	logger.Info("✅ 配置确认", zap.Int("每钱包执行次数", repetitions))

	orch := executor.NewOrchestrator(executor.OrchestratorConfig{
		Repetitions:     repetitions,
		RepetitionDelay: time.Duration(core.GetEnvInt64("REPETITION_DELAY_SECONDS", 10)) * time.Second,
	}, engine, bus, stats, logger, sink)

	// 信号触发取消: 在交易之间/上传尝试之间/延时中都能及时停止
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("🛑 收到退出信号，停止中...")
		cancel()
	}()

	if err := orch.Run(ctx, wallets); err != nil && err != context.Canceled {
		logger.Error("运行中止", zap.Error(err))
	}
	stats.PrintStats()
	logger.Info("退出", zap.String("summary", stats.GetSummary()))
}

// consoleSink 把总线事件映射到zap控制台输出
func consoleSink(logger *zap.Logger) core.LogHandler {
	return func(ev core.LogEvent) {
		fields := make([]zap.Field, 0, len(ev.Metadata))
		for k, v := range ev.Metadata {
			fields = append(fields, zap.String(k, v))
		}
		msg := ev.Icon + " " + ev.Message
		switch ev.Level {
		case core.LevelError:
			logger.Error(msg, fields...)
		case core.LevelWarn:
			logger.Warn(msg, fields...)
		case core.LevelDebug:
			logger.Debug(msg, fields...)
		default:
			logger.Info(msg, fields...)
		}
	}
}
