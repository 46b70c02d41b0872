package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/security"
	"sealbot/sui"
)

// ErrTransactionFailed 交易未达到链上明确的success状态
var ErrTransactionFailed = errors.New("transaction failed")

// ChainClient 链客户端边界: 构造调用、提交已签名交易等待确认
type ChainClient interface {
	BuildMoveCall(ctx context.Context, req sui.MoveCallRequest) (string, error)
	ExecuteSigned(ctx context.Context, txBytes, signature string) (*sui.TxResponse, error)
}

// Executor 交易执行器
// 固定gas预算，提交并等待确认，只认链上明确的success状态
// 本层不做重试: 交易失败直接中止当前工作流
type Executor struct {
	client    ChainClient
	bus       *core.Bus
	stats     *core.Stats
	logger    *zap.Logger
	gasBudget uint64
}

const defaultGasBudget = 10_000_000

// NewExecutor 创建交易执行器
func NewExecutor(client ChainClient, bus *core.Bus, stats *core.Stats, logger *zap.Logger, gasBudget uint64) *Executor {
	if gasBudget == 0 {
		gasBudget = defaultGasBudget
	}
	return &Executor{
		client:    client,
		bus:       bus,
		stats:     stats,
		logger:    logger,
		gasBudget: gasBudget,
	}
}

// Execute 执行一笔Move调用交易
// 成功返回包含digest和创建/变更对象引用的回执
func (e *Executor) Execute(ctx context.Context, identity *security.SigningIdentity, req sui.MoveCallRequest, label string) (*sui.TxResponse, error) {
	req.Signer = identity.Address
	req.GasBudget = e.gasBudget

	e.bus.Emit(core.LevelInfo,
		fmt.Sprintf("提交交易: %s", label),
		map[string]string{"function": req.Module + "::" + req.Function})
	if e.stats != nil {
		e.stats.TxSubmitted.Add(1)
	}

	txBytes, err := e.client.BuildMoveCall(ctx, req)
	if err != nil {
		return nil, e.fail(label, "", fmt.Errorf("build move call: %w", err))
	}

	signature, err := sui.SignTransaction(identity, txBytes)
	if err != nil {
		return nil, e.fail(label, "", fmt.Errorf("sign transaction: %w", err))
	}

	resp, err := e.client.ExecuteSigned(ctx, txBytes, signature)
	if err != nil {
		return nil, e.fail(label, "", fmt.Errorf("execute transaction: %w", err))
	}

	if resp.Status != "success" {
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("status %q", resp.Status)
		}
		return nil, e.fail(label, resp.Digest,
			fmt.Errorf("%w: %s", ErrTransactionFailed, reason))
	}

	e.bus.Emit(core.LevelSuccess,
		fmt.Sprintf("交易确认: %s [%s]", label, sui.ShortDigest(resp.Digest)),
		map[string]string{"digest": resp.Digest})
	if e.stats != nil {
		e.stats.TxSuccess.Add(1)
	}
	return resp, nil
}

func (e *Executor) fail(label, digest string, err error) error {
	meta := map[string]string{}
	if digest != "" {
		meta["digest"] = sui.ShortDigest(digest)
	}
	e.bus.Emit(core.LevelError,
		fmt.Sprintf("交易失败: %s: %v", label, err), meta)
	e.logger.Error("❌ 交易失败",
		zap.String("label", label),
		zap.Error(err))
	if e.stats != nil {
		e.stats.TxFailed.Add(1)
	}
	return err
}
