package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sealbot/security"
)

func TestParseOwner(t *testing.T) {
	kind, addr := parseOwner(json.RawMessage(`{"AddressOwner":"0xabc"}`))
	assert.Equal(t, OwnerAddress, kind)
	assert.Equal(t, "0xabc", addr)

	kind, _ = parseOwner(json.RawMessage(`{"Shared":{"initial_shared_version":3}}`))
	assert.Equal(t, OwnerShared, kind)

	kind, _ = parseOwner(json.RawMessage(`"Immutable"`))
	assert.Equal(t, OwnerImmutable, kind)

	kind, addr = parseOwner(json.RawMessage(`{"ObjectOwner":"0xdef"}`))
	assert.Equal(t, OwnerObject, kind)
	assert.Equal(t, "0xdef", addr)

	kind, _ = parseOwner(nil)
	assert.Equal(t, OwnerKind(""), kind)
}

func TestSignTransaction_Shape(t *testing.T) {
	id, err := security.Resolve("4d5a6b7c8d9eaf0011223344556677889900aabbccddeeff0011223344556677")
	require.NoError(t, err)

	txBytes := base64.StdEncoding.EncodeToString([]byte("fake-tx-bytes"))
	sig, err := SignTransaction(id, txBytes)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	// flag(1) + 签名(64) + 公钥(32)
	require.Len(t, raw, 97)
	assert.Equal(t, byte(0x00), raw[0])
	assert.Equal(t, id.PublicKey(), raw[65:])
}

func TestSignTransaction_BadBase64(t *testing.T) {
	id, err := security.Resolve("4d5a6b7c8d9eaf0011223344556677889900aabbccddeeff0011223344556677")
	require.NoError(t, err)
	_, err = SignTransaction(id, "!!not-base64!!")
	assert.Error(t, err)
}

func TestClient_BuildMoveCallAndExecute(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		methods = append(methods, req.Method)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "unsafe_moveCall":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"txBytes":"dHg="}}`))
		case "sui_executeTransactionBlock":
			w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{
				"digest":"9A8b7C",
				"effects":{"status":{"status":"success"}},
				"objectChanges":[
					{"type":"created","objectId":"0x1","objectType":"pkg::allowlist::Cap","owner":{"AddressOwner":"0xme"}},
					{"type":"created","objectId":"0x2","objectType":"pkg::allowlist::Allowlist","owner":{"Shared":{"initial_shared_version":1}}},
					{"type":"mutated","objectId":"0x3","objectType":"0x2::coin::Coin","owner":{"AddressOwner":"0xme"}}
				]}}`))
		}
	}))
	defer srv.Close()

	c, err := NewClient([]string{srv.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	txBytes, err := c.BuildMoveCall(context.Background(), MoveCallRequest{
		Signer:    "0xme",
		PackageID: "0xpkg",
		Module:    "allowlist",
		Function:  "create_allowlist_entry",
		Args:      []interface{}{"name"},
		GasBudget: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "dHg=", txBytes)

	resp, err := c.ExecuteSigned(context.Background(), txBytes, "sig")
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "9A8b7C", resp.Digest)
	require.Len(t, resp.Objects, 3)
	assert.Equal(t, OwnerAddress, resp.Objects[0].Owner)
	assert.Equal(t, "0xme", resp.Objects[0].OwnerAddr)
	assert.Equal(t, OwnerShared, resp.Objects[1].Owner)
	assert.Equal(t, "mutated", resp.Objects[2].Change)

	assert.Equal(t, []string{"unsafe_moveCall", "sui_executeTransactionBlock"}, methods)
}

func TestClient_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"gas object not found"}}`))
	}))
	defer srv.Close()

	c, err := NewClient([]string{srv.URL}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = c.BuildMoveCall(context.Background(), MoveCallRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gas object not found")
}

func TestClient_RotatesNodes(t *testing.T) {
	c, err := NewClient([]string{"http://a", "http://b"}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "http://a", c.nextURL())
	assert.Equal(t, "http://b", c.nextURL())
	assert.Equal(t, "http://a", c.nextURL())
}

func TestNewClient_NoNodes(t *testing.T) {
	_, err := NewClient(nil, nil, zap.NewNop())
	assert.Error(t, err)
}
