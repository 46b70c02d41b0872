package core

import (
	"fmt"
	"sync"
	"time"
)

// Level 事件级别
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelWait    Level = "WAIT"
	LevelDebug   Level = "DEBUG"
)

// levelIcons 级别对应的显示图标
var levelIcons = map[Level]string{
	LevelInfo:    "📝",
	LevelSuccess: "✅",
	LevelWarn:    "⚠️",
	LevelError:   "❌",
	LevelWait:    "⏳",
	LevelDebug:   "🔍",
}

// LogEvent 结构化日志事件
type LogEvent struct {
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Icon      string            `json:"icon"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Status 全局运行状态快照
type Status struct {
	LoadedWallet  string `json:"loaded_wallet"`
	WalletIndex   int    `json:"wallet_index"`
	TotalWallets  int    `json:"total_wallets"`
	ActiveBots    int    `json:"active_bots"`
	OverallStatus string `json:"overall_status"`
}

// StatusPatch 状态部分更新 (nil字段表示不变)
type StatusPatch struct {
	LoadedWallet  *string
	WalletIndex   *int
	TotalWallets  *int
	ActiveBots    *int
	OverallStatus *string
}

// LogHandler 日志事件处理器
type LogHandler func(LogEvent)

// StatusHandler 状态快照处理器
type StatusHandler func(Status)

const defaultHistoryCap = 1000

// Bus 进程级事件总线
// 替代全局logger: 所有组件通过注入的Bus上报状态，展示层只订阅这里
type Bus struct {
	mu             sync.Mutex
	history        []LogEvent // 环形缓冲，最多historyCap条
	historyCap     int
	start          int // 环形缓冲起始位置
	logHandlers    []LogHandler
	statusHandlers []StatusHandler
	status         Status
	warning        bool // 正在上报处理器异常，避免递归
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return NewBusWithCapacity(defaultHistoryCap)
}

// NewBusWithCapacity 创建指定历史容量的事件总线
func NewBusWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &Bus{
		history:    make([]LogEvent, 0, capacity),
		historyCap: capacity,
	}
}

// Subscribe 注册日志事件处理器，对之后的每条事件同步调用
func (b *Bus) Subscribe(h LogHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logHandlers = append(b.logHandlers, h)
}

// SubscribeStatus 注册状态处理器
func (b *Bus) SubscribeStatus(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusHandlers = append(b.statusHandlers, h)
}

// Emit 发布一条日志事件
func (b *Bus) Emit(level Level, message string, metadata map[string]string) {
	ev := LogEvent{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
		Icon:      levelIcons[level],
		Metadata:  metadata,
	}

	b.mu.Lock()
	b.append(ev)
	handlers := make([]LogHandler, len(b.logHandlers))
	copy(handlers, b.logHandlers)
	b.mu.Unlock()

	b.dispatch(ev, handlers)
}

// append 写入环形缓冲，超出容量时丢弃最旧的
func (b *Bus) append(ev LogEvent) {
	if len(b.history) < b.historyCap {
		b.history = append(b.history, ev)
		return
	}
	b.history[b.start] = ev
	b.start = (b.start + 1) % b.historyCap
}

// dispatch 依次同步通知处理器，单个处理器异常不影响其他处理器
func (b *Bus) dispatch(ev LogEvent, handlers []LogHandler) {
	for i, h := range handlers {
		func(idx int) {
			defer func() {
				if r := recover(); r != nil {
					b.reportHandlerFailure(idx, r, handlers)
				}
			}()
			h(ev)
		}(i)
	}
}

// reportHandlerFailure 把处理器异常本身作为WARN事件上报 (不向外抛出)
func (b *Bus) reportHandlerFailure(idx int, cause interface{}, handlers []LogHandler) {
	warn := LogEvent{
		Level:     LevelWarn,
		Message:   fmt.Sprintf("事件处理器 #%d 异常: %v", idx, cause),
		Timestamp: time.Now(),
		Icon:      levelIcons[LevelWarn],
	}

	b.mu.Lock()
	b.append(warn)
	if b.warning {
		// 已在上报异常的路径里，只记录不再通知，防止无限递归
		b.mu.Unlock()
		return
	}
	b.warning = true
	b.mu.Unlock()

	for i, h := range handlers {
		if i == idx {
			continue
		}
		func() {
			defer func() { recover() }()
			h(warn)
		}()
	}

	b.mu.Lock()
	b.warning = false
	b.mu.Unlock()
}

// PublishStatus 合并部分状态并通知状态订阅者
func (b *Bus) PublishStatus(patch StatusPatch) {
	b.mu.Lock()
	if patch.LoadedWallet != nil {
		b.status.LoadedWallet = *patch.LoadedWallet
	}
	if patch.WalletIndex != nil {
		b.status.WalletIndex = *patch.WalletIndex
	}
	if patch.TotalWallets != nil {
		b.status.TotalWallets = *patch.TotalWallets
	}
	if patch.ActiveBots != nil {
		b.status.ActiveBots = *patch.ActiveBots
	}
	if patch.OverallStatus != nil {
		b.status.OverallStatus = *patch.OverallStatus
	}
	snapshot := b.status
	handlers := make([]StatusHandler, len(b.statusHandlers))
	copy(handlers, b.statusHandlers)
	b.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(snapshot)
		}()
	}
}

// Status 获取当前状态快照
func (b *Bus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// History 按时间顺序返回缓冲中的事件副本
func (b *Bus) History() []LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEvent, 0, len(b.history))
	for i := 0; i < len(b.history); i++ {
		out = append(out, b.history[(b.start+i)%len(b.history)])
	}
	return out
}

// StrPtr 辅助函数: 构造StatusPatch用
func StrPtr(s string) *string { return &s }

// IntPtr 辅助函数: 构造StatusPatch用
func IntPtr(i int) *int { return &i }
