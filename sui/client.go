package sui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"sealbot/proxy"
	"sealbot/security"
)

const rpcTimeout = 30 * time.Second

// MoveCallRequest 一次Move合约调用的描述
type MoveCallRequest struct {
	Signer    string
	PackageID string
	Module    string
	Function  string
	TypeArgs  []string
	Args      []interface{}
	GasBudget uint64
}

// OwnerKind 对象归属类型
type OwnerKind string

const (
	OwnerAddress   OwnerKind = "address"
	OwnerShared    OwnerKind = "shared"
	OwnerImmutable OwnerKind = "immutable"
	OwnerObject    OwnerKind = "object"
)

// ObjectRef 交易产生/变更的对象引用
type ObjectRef struct {
	ObjectID   string
	ObjectType string
	Change     string // created / mutated
	Owner      OwnerKind
	OwnerAddr  string // Owner==address时的归属地址
}

// TxResponse 已确认交易的执行结果
type TxResponse struct {
	Digest  string
	Status  string // "success" / "failure" / ""
	Error   string
	Objects []ObjectRef
}

// Client JSON-RPC链客户端
// 多节点轮询 + 代理出口，职责只到"提交已签名交易并等待确认"为止
type Client struct {
	urls    []string
	rotator *proxy.Rotator
	logger  *zap.Logger
	mu      sync.Mutex
	nodeIdx int
	reqID   atomic.Int64
}

// NewClient 创建链客户端
func NewClient(rpcURLs []string, rotator *proxy.Rotator, logger *zap.Logger) (*Client, error) {
	var urls []string
	for _, u := range rpcURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no RPC nodes configured")
	}
	logger.Info("✅ 链RPC客户端配置", zap.Int("节点数", len(urls)))
	return &Client{urls: urls, rotator: rotator, logger: logger}, nil
}

// nextURL 轮询获取下一个RPC节点
func (c *Client) nextURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.urls[c.nodeIdx]
	c.nodeIdx = (c.nodeIdx + 1) % len(c.urls)
	return u
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call 发起一次JSON-RPC调用
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	url := c.nextURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := http.DefaultClient
	if c.rotator != nil {
		client = c.rotator.NextClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: http %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("rpc %s: decode result: %w", method, err)
		}
	}
	return nil
}

// BuildMoveCall 构造Move调用，返回base64编码的待签名交易字节
func (c *Client) BuildMoveCall(ctx context.Context, req MoveCallRequest) (string, error) {
	var result struct {
		TxBytes string `json:"txBytes"`
	}
	params := []interface{}{
		req.Signer,
		req.PackageID,
		req.Module,
		req.Function,
		req.TypeArgs,
		req.Args,
		nil, // gas对象由节点自动选择
		fmt.Sprintf("%d", req.GasBudget),
	}
	if req.TypeArgs == nil {
		params[4] = []string{}
	}
	if err := c.call(ctx, "unsafe_moveCall", params, &result); err != nil {
		return "", err
	}
	if result.TxBytes == "" {
		return "", errors.New("node returned empty txBytes")
	}
	return result.TxBytes, nil
}

// rawTxResponse 节点返回的交易结果 (只解析需要的字段)
type rawTxResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	ObjectChanges []struct {
		Type       string          `json:"type"`
		ObjectType string          `json:"objectType"`
		ObjectID   string          `json:"objectId"`
		Owner      json.RawMessage `json:"owner"`
	} `json:"objectChanges"`
}

// ExecuteSigned 提交已签名交易并等待本地确认
func (c *Client) ExecuteSigned(ctx context.Context, txBytes, signature string) (*TxResponse, error) {
	var raw rawTxResponse
	params := []interface{}{
		txBytes,
		[]string{signature},
		map[string]bool{"showEffects": true, "showObjectChanges": true},
		"WaitForLocalExecution",
	}
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &raw); err != nil {
		return nil, err
	}

	out := &TxResponse{Digest: raw.Digest}
	if raw.Effects != nil {
		out.Status = raw.Effects.Status.Status
		out.Error = raw.Effects.Status.Error
	}
	for _, ch := range raw.ObjectChanges {
		ref := ObjectRef{
			ObjectID:   ch.ObjectID,
			ObjectType: ch.ObjectType,
			Change:     ch.Type,
		}
		ref.Owner, ref.OwnerAddr = parseOwner(ch.Owner)
		out.Objects = append(out.Objects, ref)
	}
	return out, nil
}

// parseOwner 归属字段有多种形态:
//
//	{"AddressOwner":"0x.."}  {"ObjectOwner":"0x.."}  {"Shared":{...}}  "Immutable"
func parseOwner(raw json.RawMessage) (OwnerKind, string) {
	if len(raw) == 0 {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "Immutable" {
			return OwnerImmutable, ""
		}
		return "", ""
	}
	var obj struct {
		AddressOwner string          `json:"AddressOwner"`
		ObjectOwner  string          `json:"ObjectOwner"`
		Shared       json.RawMessage `json:"Shared"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ""
	}
	switch {
	case obj.AddressOwner != "":
		return OwnerAddress, obj.AddressOwner
	case obj.ObjectOwner != "":
		return OwnerObject, obj.ObjectOwner
	case len(obj.Shared) > 0:
		return OwnerShared, ""
	default:
		return "", ""
	}
}

// SignTransaction 对交易字节做意图签名
// 签名串 = base64( flag || sig(64) || pubkey(32) )
func SignTransaction(identity *security.SigningIdentity, txBytesB64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return "", fmt.Errorf("decode txBytes: %w", err)
	}

	// intent前缀: TransactionData scope
	msg := make([]byte, 0, 3+len(txBytes))
	msg = append(msg, 0x00, 0x00, 0x00)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := identity.Sign(digest[:])

	serialized := make([]byte, 0, 1+len(sig)+len(identity.PublicKey()))
	serialized = append(serialized, 0x00) // ed25519 flag
	serialized = append(serialized, sig...)
	serialized = append(serialized, identity.PublicKey()...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}

// ShortDigest 截断digest用于展示
func ShortDigest(digest string) string {
	if len(digest) <= 10 {
		return digest
	}
	return digest[:10] + "..."
}
