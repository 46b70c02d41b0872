package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/security"
	"sealbot/sui"
	"sealbot/walrus"
)

// fakeTxExec 记录每次调用，按函数名决定结果
type fakeTxExec struct {
	calls  []sui.MoveCallRequest
	labels []string
	fail   func(req sui.MoveCallRequest) error
	self   string
}

func (f *fakeTxExec) Execute(_ context.Context, _ *security.SigningIdentity, req sui.MoveCallRequest, label string) (*sui.TxResponse, error) {
	f.calls = append(f.calls, req)
	f.labels = append(f.labels, label)
	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return nil, err
		}
	}
	resp := &sui.TxResponse{Digest: fmt.Sprintf("d%d", len(f.calls)), Status: "success"}
	if req.Function == "create_allowlist_entry" || req.Function == "create_service_entry" {
		resp.Objects = []sui.ObjectRef{
			{ObjectID: "0xcap", Change: "created", Owner: sui.OwnerAddress, OwnerAddr: f.self},
			{ObjectID: "0xshared", Change: "created", Owner: sui.OwnerShared},
			{ObjectID: "0xgas", Change: "mutated", Owner: sui.OwnerAddress, OwnerAddr: f.self},
		}
	}
	return resp, nil
}

type fakeUploader struct {
	calls atomic.Int64
	err   error
}

func (f *fakeUploader) Upload(context.Context, []byte, int) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "blob-xyz", nil
}

type fakeContent struct{}

func (fakeContent) Resolve(context.Context, walrus.ContentSpec) ([]byte, error) {
	return []byte("content"), nil
}

func newTestEngine(t *testing.T, cfg WorkflowConfig, exec *fakeTxExec, up *fakeUploader, dedup *core.AddressDedup) (*Engine, *core.Bus) {
	t.Helper()
	if cfg.PackageID == "" {
		cfg.PackageID = "0xpkg"
	}
	if cfg.EntryName == "" {
		cfg.EntryName = "test"
	}
	bus := core.NewBus()
	en, err := NewEngine(cfg, exec, up, fakeContent{}, dedup, bus, zap.NewNop())
	require.NoError(t, err)
	return en, bus
}

func functions(calls []sui.MoveCallRequest) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Function)
	}
	return out
}

func TestAllowlistWorkflow_HappyPath(t *testing.T) {
	id := testIdentity(t)
	exec := &fakeTxExec{self: id.Address}
	up := &fakeUploader{}
	en, _ := newTestEngine(t, WorkflowConfig{
		Kind:           WorkflowAllowlist,
		ExtraAddresses: []string{"0xaa", "0xbb"},
		Epochs:         2,
	}, exec, up, nil)

	res, err := en.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create_allowlist_entry", "add", "add", "add", "publish",
	}, functions(exec.calls))

	// add自身地址在额外地址之前
	assert.Equal(t, id.Address, exec.calls[1].Args[2])
	assert.Equal(t, "0xaa", exec.calls[2].Args[2])
	assert.Equal(t, "0xbb", exec.calls[3].Args[2])

	assert.Equal(t, "0xshared", res.AllowlistID)
	assert.Equal(t, "0xcap", res.EntryObjectID)
	assert.Equal(t, "blob-xyz", res.BlobID)
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestAllowlistWorkflow_MalformedAddressSkippedWithWarning(t *testing.T) {
	id := testIdentity(t)
	exec := &fakeTxExec{self: id.Address}
	up := &fakeUploader{}
	en, bus := newTestEngine(t, WorkflowConfig{
		Kind:           WorkflowAllowlist,
		ExtraAddresses: []string{"0xaa", "not-an-address-but-string", "0xbb"},
	}, exec, up, nil)

	res, err := en.Run(context.Background(), id)
	require.NoError(t, err)

	// 格式不合法的条目跳过，不中止工作流，其余地址照常添加
	assert.Equal(t, []string{
		"create_allowlist_entry", "add", "add", "add", "publish",
	}, functions(exec.calls))
	assert.Equal(t, "0xaa", exec.calls[2].Args[2])
	assert.Equal(t, "0xbb", exec.calls[3].Args[2])
	assert.NotNil(t, res)

	var warned bool
	for _, ev := range bus.History() {
		if ev.Level == core.LevelWarn {
			warned = true
		}
	}
	assert.True(t, warned, "malformed entry must be warned about")
}

func TestAllowlistWorkflow_AddFailureAbortsBeforeUpload(t *testing.T) {
	id := testIdentity(t)
	txErr := fmt.Errorf("%w: MoveAbort", ErrTransactionFailed)
	exec := &fakeTxExec{
		self: id.Address,
		fail: func(req sui.MoveCallRequest) error {
			if req.Function == "add" && len(req.Args) == 3 && req.Args[2] == "0xaa" {
				return txErr
			}
			return nil
		},
	}
	up := &fakeUploader{}
	en, _ := newTestEngine(t, WorkflowConfig{
		Kind:           WorkflowAllowlist,
		ExtraAddresses: []string{"0xaa", "0xbb"},
	}, exec, up, nil)

	res, err := en.Run(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Nil(t, res, "no partial result on failure")
	// 失败发生在上传之前，不应发起任何上传
	assert.Equal(t, int64(0), up.calls.Load())
}

func TestAllowlistWorkflow_DedupSkipsAlreadyAdded(t *testing.T) {
	id := testIdentity(t)
	exec := &fakeTxExec{self: id.Address}
	up := &fakeUploader{}
	dedup := core.NewAddressDedup(core.DefaultDedupConfig(), zap.NewNop())
	en, _ := newTestEngine(t, WorkflowConfig{
		Kind:           WorkflowAllowlist,
		ExtraAddresses: []string{"0xaa"},
	}, exec, up, dedup)

	_, err := en.Run(context.Background(), id)
	require.NoError(t, err)
	firstRun := len(exec.calls)

	// 第二次执行: 同一个allowlist对象(0xshared)，0xaa已添加过，跳过add
	_, err = en.Run(context.Background(), id)
	require.NoError(t, err)
	secondRun := len(exec.calls) - firstRun
	assert.Equal(t, firstRun-1, secondRun)
}

func TestSubscriptionWorkflow_HappyPath(t *testing.T) {
	id := testIdentity(t)
	exec := &fakeTxExec{self: id.Address}
	up := &fakeUploader{}
	en, _ := newTestEngine(t, WorkflowConfig{
		Kind:        WorkflowSubscription,
		SubAmount:   100,
		SubDuration: 60,
	}, exec, up, nil)

	res, err := en.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{"create_service_entry", "publish"}, functions(exec.calls))
	assert.Equal(t, "0xshared", res.SharedObjectID)
	assert.Equal(t, "0xcap", res.EntryObjectID)
	assert.Equal(t, "blob-xyz", res.BlobID)
}

func TestWorkflow_UploadFailureAbortsPublish(t *testing.T) {
	id := testIdentity(t)
	exec := &fakeTxExec{self: id.Address}
	up := &fakeUploader{err: fmt.Errorf("%w: all endpoints down", walrus.ErrUploadExhausted)}
	en, _ := newTestEngine(t, WorkflowConfig{Kind: WorkflowSubscription}, exec, up, nil)

	res, err := en.Run(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, walrus.ErrUploadExhausted)
	assert.Nil(t, res)
	// publish不应被调用
	assert.NotContains(t, functions(exec.calls), "publish")
}

func TestExtractCreated(t *testing.T) {
	resp := &sui.TxResponse{
		Digest: "d1",
		Objects: []sui.ObjectRef{
			{ObjectID: "0xgas", Change: "mutated", Owner: sui.OwnerAddress, OwnerAddr: "0xme"},
			{ObjectID: "0xcap", Change: "created", Owner: sui.OwnerAddress, OwnerAddr: "0xme"},
			{ObjectID: "0xother", Change: "created", Owner: sui.OwnerAddress, OwnerAddr: "0xsomeone"},
			{ObjectID: "0xshared", Change: "created", Owner: sui.OwnerShared},
		},
	}
	capID, sharedID, err := extractCreated(resp, "0xme")
	require.NoError(t, err)
	assert.Equal(t, "0xcap", capID)
	assert.Equal(t, "0xshared", sharedID)
}

func TestExtractCreated_MissingObjectFails(t *testing.T) {
	cases := []struct {
		name    string
		objects []sui.ObjectRef
	}{
		{"no shared", []sui.ObjectRef{
			{ObjectID: "0xcap", Change: "created", Owner: sui.OwnerAddress, OwnerAddr: "0xme"},
		}},
		{"no cap", []sui.ObjectRef{
			{ObjectID: "0xshared", Change: "created", Owner: sui.OwnerShared},
		}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := extractCreated(&sui.TxResponse{Digest: "d", Objects: tc.objects}, "0xme")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrObjectIDResolution)
		})
	}
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0xaa"))
	assert.True(t, IsValidAddress("0x"+testSeed))
	assert.False(t, IsValidAddress("not-an-address-but-string"))
	assert.False(t, IsValidAddress("0x"))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("aa"))
}

func TestNewEngine_UnknownKind(t *testing.T) {
	_, err := NewEngine(WorkflowConfig{Kind: "bogus"}, &fakeTxExec{}, &fakeUploader{}, fakeContent{}, nil, core.NewBus(), zap.NewNop())
	assert.Error(t, err)
}
