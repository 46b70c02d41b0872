package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/security"
	"sealbot/sui"
	"sealbot/walrus"
)

// ErrObjectIDResolution 创建交易回执中找不到期望归属的对象
var ErrObjectIDResolution = errors.New("object id resolution failed")

// 工作流类型
const (
	WorkflowAllowlist    = "allowlist"
	WorkflowSubscription = "subscription"
)

// txExecutor 交易执行边界 (由Executor实现)
type txExecutor interface {
	Execute(ctx context.Context, identity *security.SigningIdentity, req sui.MoveCallRequest, label string) (*sui.TxResponse, error)
}

// blobUploader 上传边界 (由walrus.Uploader实现)
type blobUploader interface {
	Upload(ctx context.Context, content []byte, epochs int) (string, error)
}

// contentResolver 内容来源边界 (由walrus.ContentSource实现)
type contentResolver interface {
	Resolve(ctx context.Context, spec walrus.ContentSpec) ([]byte, error)
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	Kind           string             // allowlist / subscription
	PackageID      string             // 目标Move包
	EntryName      string             // allowlist/服务条目名称
	ExtraAddresses []string           // allowlist额外添加的地址
	Epochs         int                // blob存储周期数
	SubAmount      uint64             // 订阅价格 (最小单位)
	SubDuration    uint64             // 订阅时长 (分钟)
	Content        walrus.ContentSpec // 上传内容来源
}

// Result 一次成功工作流产出的标识符集合
// 只有全部步骤成功才会构造，不存在部分完成的Result
type Result struct {
	Workflow       string
	AllowlistID    string // allowlist工作流: 共享allowlist对象
	SharedObjectID string // subscription工作流: 共享服务对象
	EntryObjectID  string // 钱包持有的cap/entry对象
	BlobID         string
}

// Engine 工作流引擎: 把交易执行和blob上传串成固定步骤序列
// 任一步失败即中止本次执行并向上传播错误
type Engine struct {
	config   WorkflowConfig
	exec     txExecutor
	uploader blobUploader
	content  contentResolver
	dedup    *core.AddressDedup
	bus      *core.Bus
	logger   *zap.Logger
}

// NewEngine 创建工作流引擎
func NewEngine(config WorkflowConfig, exec txExecutor, uploader blobUploader, content contentResolver, dedup *core.AddressDedup, bus *core.Bus, logger *zap.Logger) (*Engine, error) {
	switch config.Kind {
	case WorkflowAllowlist, WorkflowSubscription:
	default:
		return nil, fmt.Errorf("unknown workflow kind %q", config.Kind)
	}
	if config.Epochs <= 0 {
		config.Epochs = 1
	}
	return &Engine{
		config:   config,
		exec:     exec,
		uploader: uploader,
		content:  content,
		dedup:    dedup,
		bus:      bus,
		logger:   logger,
	}, nil
}

// Run 执行一次配置好的工作流
func (en *Engine) Run(ctx context.Context, identity *security.SigningIdentity) (*Result, error) {
	switch en.config.Kind {
	case WorkflowSubscription:
		return en.runSubscription(ctx, identity)
	default:
		return en.runAllowlist(ctx, identity)
	}
}

// runAllowlist allowlist工作流:
// 创建entry → 添加自身地址 → 添加额外地址 → 上传blob → 发布blob引用
func (en *Engine) runAllowlist(ctx context.Context, identity *security.SigningIdentity) (*Result, error) {
	resp, err := en.exec.Execute(ctx, identity, sui.MoveCallRequest{
		PackageID: en.config.PackageID,
		Module:    "allowlist",
		Function:  "create_allowlist_entry",
		Args:      []interface{}{en.config.EntryName},
	}, "创建allowlist")
	if err != nil {
		return nil, err
	}

	capID, allowlistID, err := extractCreated(resp, identity.Address)
	if err != nil {
		return nil, err
	}

	// 先添加钱包自身地址
	_, err = en.exec.Execute(ctx, identity, sui.MoveCallRequest{
		PackageID: en.config.PackageID,
		Module:    "allowlist",
		Function:  "add",
		Args:      []interface{}{allowlistID, capID, identity.Address},
	}, "添加自身地址")
	if err != nil {
		return nil, err
	}
	en.markAdded(allowlistID, identity.Address)

	// 额外地址: 格式不合法的跳过并告警，交易失败则中止
	for _, addr := range en.config.ExtraAddresses {
		if !IsValidAddress(addr) {
			en.bus.Emit(core.LevelWarn,
				fmt.Sprintf("地址格式不合法，跳过: %s", truncateAddr(addr)), nil)
			continue
		}
		if en.dedup != nil && en.dedup.Seen(allowlistID, addr) {
			en.bus.Emit(core.LevelDebug,
				fmt.Sprintf("地址已添加过，跳过: %s", truncateAddr(addr)), nil)
			continue
		}
		_, err = en.exec.Execute(ctx, identity, sui.MoveCallRequest{
			PackageID: en.config.PackageID,
			Module:    "allowlist",
			Function:  "add",
			Args:      []interface{}{allowlistID, capID, addr},
		}, fmt.Sprintf("添加地址 %s", truncateAddr(addr)))
		if err != nil {
			return nil, err
		}
		en.markAdded(allowlistID, addr)
	}

	blobID, err := en.uploadContent(ctx)
	if err != nil {
		return nil, err
	}

	_, err = en.exec.Execute(ctx, identity, sui.MoveCallRequest{
		PackageID: en.config.PackageID,
		Module:    "allowlist",
		Function:  "publish",
		Args:      []interface{}{allowlistID, capID, blobID},
	}, "发布blob引用")
	if err != nil {
		return nil, err
	}

	return &Result{
		Workflow:      WorkflowAllowlist,
		AllowlistID:   allowlistID,
		EntryObjectID: capID,
		BlobID:        blobID,
	}, nil
}

// runSubscription 订阅工作流:
// 创建服务条目(价格+时长) → 上传blob → 发布blob引用
func (en *Engine) runSubscription(ctx context.Context, identity *security.SigningIdentity) (*Result, error) {
	resp, err := en.exec.Execute(ctx, identity, sui.MoveCallRequest{
		PackageID: en.config.PackageID,
		Module:    "subscription",
		Function:  "create_service_entry",
		Args: []interface{}{
			fmt.Sprintf("%d", en.config.SubAmount),
			fmt.Sprintf("%d", en.config.SubDuration),
			en.config.EntryName,
		},
	}, "创建订阅服务")
	if err != nil {
		return nil, err
	}

	capID, sharedID, err := extractCreated(resp, identity.Address)
	if err != nil {
		return nil, err
	}

	blobID, err := en.uploadContent(ctx)
	if err != nil {
		return nil, err
	}

	_, err = en.exec.Execute(ctx, identity, sui.MoveCallRequest{
		PackageID: en.config.PackageID,
		Module:    "subscription",
		Function:  "publish",
		Args:      []interface{}{sharedID, capID, blobID},
	}, "发布blob引用")
	if err != nil {
		return nil, err
	}

	return &Result{
		Workflow:       WorkflowSubscription,
		SharedObjectID: sharedID,
		EntryObjectID:  capID,
		BlobID:         blobID,
	}, nil
}

func (en *Engine) uploadContent(ctx context.Context) (string, error) {
	content, err := en.content.Resolve(ctx, en.config.Content)
	if err != nil {
		return "", fmt.Errorf("resolve content: %w", err)
	}
	return en.uploader.Upload(ctx, content, en.config.Epochs)
}

func (en *Engine) markAdded(containerID, addr string) {
	if en.dedup != nil {
		en.dedup.Mark(containerID, addr)
	}
}

// extractCreated 从创建交易回执中提取对象:
// 归属为钱包自身地址的created对象是cap/entry，归属shared的是共享对象
// 缺任意一个都视为失败，本次工作流不可恢复
func extractCreated(resp *sui.TxResponse, selfAddr string) (capID, sharedID string, err error) {
	for _, obj := range resp.Objects {
		if obj.Change != "created" {
			continue
		}
		switch {
		case obj.Owner == sui.OwnerAddress && obj.OwnerAddr == selfAddr && capID == "":
			capID = obj.ObjectID
		case obj.Owner == sui.OwnerShared && sharedID == "":
			sharedID = obj.ObjectID
		}
	}
	if capID == "" || sharedID == "" {
		return "", "", fmt.Errorf("%w: digest %s (cap=%q shared=%q)",
			ErrObjectIDResolution, sui.ShortDigest(resp.Digest), capID, sharedID)
	}
	return capID, sharedID, nil
}

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// IsValidAddress 校验链上地址格式
func IsValidAddress(addr string) bool {
	return addressRe.MatchString(addr)
}

func truncateAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:12] + "..."
}
