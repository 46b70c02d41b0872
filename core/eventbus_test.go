package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_RingBufferDiscardsOldest(t *testing.T) {
	bus := NewBusWithCapacity(1000)

	for i := 0; i < 1500; i++ {
		bus.Emit(LevelInfo, fmt.Sprintf("event-%d", i), nil)
	}

	history := bus.History()
	require.Len(t, history, 1000)
	assert.Equal(t, "event-500", history[0].Message)
	assert.Equal(t, "event-1499", history[999].Message)
}

func TestBus_HistoryOrderedBelowCapacity(t *testing.T) {
	bus := NewBusWithCapacity(10)
	for i := 0; i < 3; i++ {
		bus.Emit(LevelInfo, fmt.Sprintf("e%d", i), nil)
	}
	history := bus.History()
	require.Len(t, history, 3)
	assert.Equal(t, "e0", history[0].Message)
	assert.Equal(t, "e2", history[2].Message)
}

func TestBus_SubscribersReceiveEvents(t *testing.T) {
	bus := NewBus()
	var got []LogEvent
	bus.Subscribe(func(ev LogEvent) { got = append(got, ev) })

	bus.Emit(LevelSuccess, "done", map[string]string{"k": "v"})

	require.Len(t, got, 1)
	assert.Equal(t, LevelSuccess, got[0].Level)
	assert.Equal(t, "done", got[0].Message)
	assert.Equal(t, "v", got[0].Metadata["k"])
	assert.NotEmpty(t, got[0].Icon)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus()
	var second []LogEvent
	bus.Subscribe(func(LogEvent) { panic("boom") })
	bus.Subscribe(func(ev LogEvent) { second = append(second, ev) })

	require.NotPanics(t, func() {
		bus.Emit(LevelInfo, "hello", nil)
	})

	// 第二个订阅者收到原事件 + 处理器异常的WARN事件
	require.GreaterOrEqual(t, len(second), 2)

	var warned, gotOriginal bool
	for _, ev := range second {
		if ev.Level == LevelWarn {
			warned = true
		}
		if ev.Message == "hello" {
			gotOriginal = true
		}
	}
	assert.True(t, gotOriginal, "healthy subscriber still receives the original event")
	assert.True(t, warned, "handler failure should surface as WARN event")

	// WARN事件也进了历史缓冲
	var inHistory bool
	for _, ev := range bus.History() {
		if ev.Level == LevelWarn {
			inHistory = true
		}
	}
	assert.True(t, inHistory)
}

func TestBus_StatusMergeByField(t *testing.T) {
	bus := NewBus()
	var snapshots []Status
	bus.SubscribeStatus(func(s Status) { snapshots = append(snapshots, s) })

	bus.PublishStatus(StatusPatch{
		LoadedWallet: StrPtr("0xabc..."),
		TotalWallets: IntPtr(5),
	})
	bus.PublishStatus(StatusPatch{WalletIndex: IntPtr(2)})

	require.Len(t, snapshots, 2)
	// 第二次更新不抹掉第一次的字段
	assert.Equal(t, "0xabc...", snapshots[1].LoadedWallet)
	assert.Equal(t, 5, snapshots[1].TotalWallets)
	assert.Equal(t, 2, snapshots[1].WalletIndex)

	status := bus.Status()
	assert.Equal(t, 2, status.WalletIndex)
	assert.Equal(t, "0xabc...", status.LoadedWallet)
}
