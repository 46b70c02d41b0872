package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats 全局统计信息
type Stats struct {
	// 钱包统计
	WalletsLoaded    atomic.Int64 // 加载的钱包数
	WalletsProcessed atomic.Int64 // 处理完成的钱包数
	WalletsFailed    atomic.Int64 // 凭证解析失败的钱包数

	// 工作流统计
	WorkflowsRun     atomic.Int64 // 执行的工作流次数
	WorkflowsSuccess atomic.Int64 // 成功次数
	WorkflowsFailed  atomic.Int64 // 失败次数

	// 交易统计
	TxSubmitted atomic.Int64 // 提交的交易数
	TxSuccess   atomic.Int64 // 链上确认成功数
	TxFailed    atomic.Int64 // 失败数

	// 上传统计
	UploadAttempts atomic.Int64 // 上传尝试次数
	UploadSuccess  atomic.Int64 // 上传成功数
	UploadFailed   atomic.Int64 // 上传最终失败数
	BlobBytes      atomic.Int64 // 上传的总字节数

	// 时间
	StartTime        time.Time
	LastActivityTime time.Time
	mu               sync.Mutex

	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewStats 创建统计实例
func NewStats(logger *zap.Logger) *Stats {
	now := time.Now()
	return &Stats{
		StartTime:        now,
		LastActivityTime: now,
		logger:           logger,
		stopChan:         make(chan struct{}),
	}
}

// UpdateActivity 更新最后活动时间
func (s *Stats) UpdateActivity() {
	s.mu.Lock()
	s.LastActivityTime = time.Now()
	s.mu.Unlock()
}

// StartReporter 启动定期报告
func (s *Stats) StartReporter(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.PrintStats()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop 停止报告
func (s *Stats) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// PrintStats 打印统计信息
func (s *Stats) PrintStats() {
	uptime := time.Since(s.StartTime).Round(time.Second)

	s.mu.Lock()
	lastActivity := time.Since(s.LastActivityTime).Round(time.Second)
	s.mu.Unlock()

	successRate := float64(0)
	run := s.WorkflowsRun.Load()
	if run > 0 {
		successRate = float64(s.WorkflowsSuccess.Load()) / float64(run) * 100
	}

	s.logger.Info("📊 ═══════════ 运行状态 ═══════════",
		zap.String("运行时间", uptime.String()),
		zap.String("最后活动", fmt.Sprintf("%s前", lastActivity.String())),
	)
	s.logger.Info("👛 钱包统计",
		zap.Int64("加载", s.WalletsLoaded.Load()),
		zap.Int64("完成", s.WalletsProcessed.Load()),
		zap.Int64("凭证失败", s.WalletsFailed.Load()),
	)
	s.logger.Info("🚀 工作流统计",
		zap.Int64("执行", run),
		zap.Int64("成功", s.WorkflowsSuccess.Load()),
		zap.Int64("失败", s.WorkflowsFailed.Load()),
		zap.String("成功率", fmt.Sprintf("%.1f%%", successRate)),
	)
	s.logger.Info("⛓️ 交易/上传统计",
		zap.Int64("交易提交", s.TxSubmitted.Load()),
		zap.Int64("交易成功", s.TxSuccess.Load()),
		zap.Int64("交易失败", s.TxFailed.Load()),
		zap.Int64("上传尝试", s.UploadAttempts.Load()),
		zap.Int64("上传成功", s.UploadSuccess.Load()),
		zap.Int64("上传字节", s.BlobBytes.Load()),
	)
}

// GetSummary 获取摘要字符串
func (s *Stats) GetSummary() string {
	return fmt.Sprintf(
		"钱包:%d/%d 工作流:%d 成功:%d 失败:%d",
		s.WalletsProcessed.Load(),
		s.WalletsLoaded.Load(),
		s.WorkflowsRun.Load(),
		s.WorkflowsSuccess.Load(),
		s.WorkflowsFailed.Load(),
	)
}
