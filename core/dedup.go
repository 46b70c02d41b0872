package core

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
)

// AddressDedup 本轮运行内的地址去重索引
// 同一个allowlist在多次重复执行时跳过已添加过的地址，省掉注定失败的交易
// 布隆过滤器误判的代价只是少发一笔add交易，可接受
type AddressDedup struct {
	filter *bloom.BloomFilter
	mu     sync.Mutex
	count  uint
	logger *zap.Logger
}

// DedupConfig 去重配置
type DedupConfig struct {
	ExpectedItems uint    // 预期地址量
	FalsePositive float64 // 误判率
}

// DefaultDedupConfig 默认配置
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		ExpectedItems: 100_000,
		FalsePositive: 0.0001,
	}
}

// NewAddressDedup 创建去重索引
func NewAddressDedup(cfg DedupConfig, logger *zap.Logger) *AddressDedup {
	if cfg.ExpectedItems == 0 {
		cfg = DefaultDedupConfig()
	}
	return &AddressDedup{
		filter: bloom.NewWithEstimates(cfg.ExpectedItems, cfg.FalsePositive),
		logger: logger,
	}
}

// dedupKey 按 容器id+地址 去重，地址统一小写
func dedupKey(containerID, address string) string {
	return containerID + "|" + strings.ToLower(address)
}

// Seen 检查地址是否已在该容器中记录过
func (d *AddressDedup) Seen(containerID, address string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.TestString(dedupKey(containerID, address))
}

// Mark 记录已添加的地址
func (d *AddressDedup) Mark(containerID, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.AddString(dedupKey(containerID, address))
	d.count++
}

// Count 已记录的地址数
func (d *AddressDedup) Count() uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
