package security

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

const (
	// RawKeySize ed25519种子字节数
	RawKeySize = 32
	// keyPrefix 结构化私钥编码的人类可读前缀
	keyPrefix = "suiprivkey"
	// ed25519Flag 签名方案标志位
	ed25519Flag = 0x00
)

// ErrInvalidCredential 凭证格式无法识别或派生失败
var ErrInvalidCredential = errors.New("invalid credential format")

// SigningIdentity 签名身份: 派生的密钥对及其链上地址
// 每个钱包在一轮处理中只存在一个实例，处理结束后丢弃
type SigningIdentity struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	Address string
}

// PublicKey 公钥字节
func (s *SigningIdentity) PublicKey() []byte {
	return []byte(s.pub)
}

// Sign 对消息签名
func (s *SigningIdentity) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// Destroy 清零私钥材料
func (s *SigningIdentity) Destroy() {
	ZeroBytes(s.priv)
}

// ZeroBytes 安全清零字节数组
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// decoder 凭证解码器: 谓词命中则尝试解码
type decoder struct {
	name   string
	match  func(string) bool
	decode func(string) ([]byte, error)
}

// decoders 凭证自动识别链，按顺序第一个命中的生效:
// 1. bech32结构化私钥  2. 32字节base64  3. 32字节hex(可带0x)  4. 助记词
var decoders = []decoder{
	{
		name:   "bech32",
		match:  func(s string) bool { return strings.HasPrefix(s, keyPrefix) },
		decode: decodeBech32Key,
	},
	{
		name:   "base64",
		match:  isRawBase64Key,
		decode: decodeBase64Key,
	},
	{
		name:   "hex",
		match:  isRawHexKey,
		decode: decodeHexKey,
	},
	{
		name:   "mnemonic",
		match:  func(string) bool { return true },
		decode: deriveMnemonicKey,
	},
}

// Resolve 把钱包凭证串解析为签名身份
// 凭证原文绝不进入错误信息，只保留短前缀
func Resolve(credential string) (*SigningIdentity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}

	for _, d := range decoders {
		if !d.match(credential) {
			continue
		}
		seed, err := d.decode(credential)
		if err != nil {
			return nil, fmt.Errorf("%w (%s, %s): %v",
				ErrInvalidCredential, d.name, maskPrefix(credential), err)
		}
		return identityFromSeed(seed), nil
	}

	// decoders链以助记词兜底，理论上到不了这里
	return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, maskPrefix(credential))
}

func maskPrefix(cred string) string {
	if len(cred) <= 6 {
		return "***"
	}
	return cred[:6] + "..."
}

// identityFromSeed 从32字节种子派生身份
// 地址 = blake2b256(flag || pubkey)
func identityFromSeed(seed []byte) *SigningIdentity {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	ZeroBytes(seed)

	buf := make([]byte, 0, 1+ed25519.PublicKeySize)
	buf = append(buf, ed25519Flag)
	buf = append(buf, pub...)
	digest := blake2b.Sum256(buf)

	return &SigningIdentity{
		priv:    priv,
		pub:     pub,
		Address: "0x" + hex.EncodeToString(digest[:]),
	}
}

// decodeBech32Key 解码 suiprivkey1... 结构化私钥
// 载荷 = flag(1字节) + 种子(32字节)
func decodeBech32Key(s string) ([]byte, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return nil, err
	}
	if hrp != keyPrefix {
		return nil, fmt.Errorf("unexpected prefix %q", hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(payload) != 1+RawKeySize {
		return nil, fmt.Errorf("unexpected payload length %d", len(payload))
	}
	if payload[0] != ed25519Flag {
		return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", payload[0])
	}
	seed := make([]byte, RawKeySize)
	copy(seed, payload[1:])
	return seed, nil
}

func isRawBase64Key(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	// 33字节的情况是 flag+种子
	return len(raw) == RawKeySize || len(raw) == RawKeySize+1
}

func decodeBase64Key(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) == RawKeySize+1 {
		if raw[0] != ed25519Flag {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", raw[0])
		}
		raw = raw[1:]
	}
	if len(raw) != RawKeySize {
		return nil, fmt.Errorf("unexpected key length %d", len(raw))
	}
	return raw, nil
}

func isRawHexKey(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != RawKeySize*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func decodeHexKey(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// deriveMnemonicKey 助记词派生: bip39种子 + SLIP-0010 ed25519硬化派生
// 路径 m/44'/784'/0'/0'/0'
func deriveMnemonicKey(s string) ([]byte, error) {
	if !bip39.IsMnemonicValid(s) {
		return nil, errors.New("not a valid mnemonic phrase")
	}
	seed := bip39.NewSeed(s, "")
	defer ZeroBytes(seed)

	key, chain := slip10MasterKey(seed)
	for _, index := range []uint32{44, 784, 0, 0, 0} {
		key, chain = slip10Derive(key, chain, index|0x80000000)
	}
	ZeroBytes(chain)
	return key, nil
}

// slip10MasterKey SLIP-0010主密钥
func slip10MasterKey(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// slip10Derive 一级硬化派生
func slip10Derive(key, chain []byte, index uint32) ([]byte, []byte) {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
