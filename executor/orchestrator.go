package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/security"
)

// 编排器状态机: Idle → Running → Completed
const (
	StateIdle      = "Idle"
	StateRunning   = "Running"
	StateCompleted = "Completed"
)

// WorkflowRunner 工作流执行边界 (由Engine实现)
type WorkflowRunner interface {
	Run(ctx context.Context, identity *security.SigningIdentity) (*Result, error)
}

// ResultSink 成功结果的落库边界 (可选，由database.ResultStore实现)
type ResultSink interface {
	Record(ctx context.Context, wallet, workflow string, res *Result) error
}

// OrchestratorConfig 编排配置
type OrchestratorConfig struct {
	Repetitions     int           // 每个钱包的工作流重复次数
	RepetitionDelay time.Duration // 两次重复之间的延时 (最后一次后不延时)
}

// Orchestrator 钱包任务编排器
// 严格顺序处理: 钱包之间、同一钱包的多次重复之间都不并发
// 避免同一签名身份的交易出现nonce/顺序冲突
type Orchestrator struct {
	config OrchestratorConfig
	engine WorkflowRunner
	bus    *core.Bus
	stats  *core.Stats
	logger *zap.Logger
	sink   ResultSink

	// 可注入，便于测试
	resolve func(string) (*security.SigningIdentity, error)
	sleep   func(context.Context, time.Duration) bool

	state string
}

// NewOrchestrator 创建编排器
func NewOrchestrator(config OrchestratorConfig, engine WorkflowRunner, bus *core.Bus, stats *core.Stats, logger *zap.Logger, sink ResultSink) *Orchestrator {
	if config.Repetitions < 1 {
		config.Repetitions = 1
	}
	return &Orchestrator{
		config:  config,
		engine:  engine,
		bus:     bus,
		stats:   stats,
		logger:  logger,
		sink:    sink,
		resolve: security.Resolve,
		sleep:   core.Sleep,
		state:   StateIdle,
	}
}

// State 当前状态
func (o *Orchestrator) State() string {
	return o.state
}

func (o *Orchestrator) setState(state string) {
	o.state = state
	o.bus.PublishStatus(core.StatusPatch{OverallStatus: core.StrPtr(state)})
}

// Run 依次处理全部钱包，单个钱包或单次重复的失败不会中止整个运行
func (o *Orchestrator) Run(ctx context.Context, wallets []string) error {
	if len(wallets) == 0 {
		return errors.New("no wallets loaded")
	}

	o.setState(StateRunning)
	if o.stats != nil {
		o.stats.WalletsLoaded.Store(int64(len(wallets)))
	}
	o.bus.Emit(core.LevelInfo,
		fmt.Sprintf("开始处理 %d 个钱包，每个执行 %d 次", len(wallets), o.config.Repetitions),
		nil)

	for i, cred := range wallets {
		if ctx.Err() != nil {
			break
		}
		o.processWallet(ctx, i, len(wallets), cred)
	}

	o.setState(StateCompleted)
	o.bus.Emit(core.LevelSuccess, "🏁 全部钱包处理完成", map[string]string{
		"summary": o.summary(),
	})
	return ctx.Err()
}

// processWallet 处理单个钱包: 派生身份 → 重复执行工作流 → 丢弃身份
// 凭证解析失败只影响该钱包
func (o *Orchestrator) processWallet(ctx context.Context, index, total int, cred string) {
	masked := core.MaskCredential(cred)
	o.bus.PublishStatus(core.StatusPatch{
		LoadedWallet: core.StrPtr(masked),
		WalletIndex:  core.IntPtr(index + 1),
		TotalWallets: core.IntPtr(total),
		ActiveBots:   core.IntPtr(1),
	})

	identity, err := o.resolve(cred)
	if err != nil {
		o.bus.Emit(core.LevelError,
			fmt.Sprintf("钱包 %d/%d 凭证解析失败: %v", index+1, total, err),
			map[string]string{"wallet": masked})
		if o.stats != nil {
			o.stats.WalletsFailed.Add(1)
		}
		return
	}
	defer identity.Destroy()

	o.bus.Emit(core.LevelInfo,
		fmt.Sprintf("钱包 %d/%d 就绪: %s", index+1, total, identity.Address),
		map[string]string{"wallet": masked})

	for r := 1; r <= o.config.Repetitions; r++ {
		if ctx.Err() != nil {
			return
		}

		o.bus.Emit(core.LevelInfo,
			fmt.Sprintf("钱包 %d/%d 第 %d/%d 次工作流", index+1, total, r, o.config.Repetitions),
			nil)
		if o.stats != nil {
			o.stats.WorkflowsRun.Add(1)
			o.stats.UpdateActivity()
		}

		res, err := o.engine.Run(ctx, identity)
		if err != nil {
			if o.stats != nil {
				o.stats.WorkflowsFailed.Add(1)
			}
			// 先上报再收容，错误不会静默丢弃
			o.bus.Emit(core.LevelError,
				fmt.Sprintf("第 %d 次工作流失败: %v", r, err),
				map[string]string{"wallet": masked})

			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, security.ErrInvalidCredential) {
				// 身份层错误对该钱包不可恢复，跳到下一个钱包
				o.bus.Emit(core.LevelWarn,
					fmt.Sprintf("钱包 %d/%d 身份错误，跳过剩余 %d 次", index+1, total, o.config.Repetitions-r),
					nil)
				break
			}
		} else {
			if o.stats != nil {
				o.stats.WorkflowsSuccess.Add(1)
			}
			o.recordResult(ctx, masked, res)
		}

		// 最后一次之后不延时
		if r < o.config.Repetitions {
			if !o.sleep(ctx, o.config.RepetitionDelay) {
				return
			}
		}
	}

	if o.stats != nil {
		o.stats.WalletsProcessed.Add(1)
	}
}

func (o *Orchestrator) recordResult(ctx context.Context, wallet string, res *Result) {
	if o.sink == nil || res == nil {
		return
	}
	if err := o.sink.Record(ctx, wallet, res.Workflow, res); err != nil {
		o.bus.Emit(core.LevelWarn,
			fmt.Sprintf("结果落库失败: %v", err), nil)
	}
}

func (o *Orchestrator) summary() string {
	if o.stats == nil {
		return ""
	}
	return o.stats.GetSummary()
}
