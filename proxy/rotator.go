package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"
)

const clientTimeout = 30 * time.Second

// Endpoint 一个可用的代理出口
type Endpoint struct {
	URL    *url.URL
	Client *http.Client
}

// Rotator 代理轮换器
// 按顺序循环返回代理，不可解析的条目跳过，全部不可用时回退为直连(nil)
type Rotator struct {
	raw     []string
	logger  *zap.Logger
	mu      sync.Mutex
	cursor  int
	clients map[string]*Endpoint // 按原始串缓存已构建的客户端
}

// NewRotator 创建代理轮换器，list可以为空(无代理模式)
func NewRotator(list []string, logger *zap.Logger) *Rotator {
	return &Rotator{
		raw:     list,
		logger:  logger,
		clients: make(map[string]*Endpoint),
	}
}

// Size 配置的代理条目数 (含无效条目)
func (r *Rotator) Size() int {
	return len(r.raw)
}

// Next 返回下一个可用代理，没有可用代理时返回nil
// 解析失败的条目记一次WARN并继续推进游标，最多推进列表长度次，避免死循环
func (r *Rotator) Next() *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.raw) == 0 {
		return nil
	}

	for i := 0; i < len(r.raw); i++ {
		entry := r.raw[r.cursor]
		r.cursor = (r.cursor + 1) % len(r.raw)

		if ep, ok := r.clients[entry]; ok {
			if ep == nil {
				continue // 已知的坏条目
			}
			return ep
		}

		proxyURL, err := ParseProxyLine(entry)
		if err != nil {
			r.logger.Warn("⚠️ 不支持的代理格式，跳过",
				zap.String("entry", entry),
				zap.Error(err))
			r.clients[entry] = nil
			continue
		}

		ep := &Endpoint{
			URL:    proxyURL,
			Client: newHTTPClient(proxyURL),
		}
		r.clients[entry] = ep
		return ep
	}

	return nil
}

// NextClient 返回下一个代理HTTP客户端，无代理时返回默认直连客户端
func (r *Rotator) NextClient() *http.Client {
	if ep := r.Next(); ep != nil {
		return ep.Client
	}
	return directClient
}

// directClient 无代理时共享的直连客户端
var directClient = &http.Client{Timeout: clientTimeout}

// ParseProxyLine 解析代理描述串，支持三种格式:
//
//	host:port
//	host:port:user:pass
//	user:pass@host:port
//
// 可选 http:// 或 socks5:// 前缀，默认http
func ParseProxyLine(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty proxy entry")
	}

	scheme := "http"
	if strings.Contains(s, "://") {
		parts := strings.SplitN(s, "://", 2)
		scheme = strings.ToLower(parts[0])
		s = parts[1]
		if scheme != "http" && scheme != "socks5" {
			return nil, fmt.Errorf("unsupported proxy scheme: %s", scheme)
		}
	}

	// user:pass@host:port
	if at := strings.LastIndex(s, "@"); at >= 0 {
		cred := s[:at]
		hostport := s[at+1:]
		credParts := strings.SplitN(cred, ":", 2)
		if len(credParts) != 2 {
			return nil, fmt.Errorf("invalid proxy credentials, expected user:pass@host:port")
		}
		host, port, err := splitHostPort(hostport)
		if err != nil {
			return nil, err
		}
		return &url.URL{
			Scheme: scheme,
			Host:   net.JoinHostPort(host, port),
			User:   url.UserPassword(credParts[0], credParts[1]),
		}, nil
	}

	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2:
		// host:port
		host, port, err := splitHostPort(s)
		if err != nil {
			return nil, err
		}
		return &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, port)}, nil
	case len(parts) >= 4:
		// host:port:user:pass (密码可能包含冒号)
		host, port := parts[0], parts[1]
		if _, _, err := splitHostPort(host + ":" + port); err != nil {
			return nil, err
		}
		user := parts[2]
		pass := strings.Join(parts[3:], ":")
		return &url.URL{
			Scheme: scheme,
			Host:   net.JoinHostPort(host, port),
			User:   url.UserPassword(user, pass),
		}, nil
	default:
		return nil, fmt.Errorf("invalid proxy format, expected host:port[:user:pass] or user:pass@host:port")
	}
}

func splitHostPort(s string) (string, string, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", "", fmt.Errorf("invalid host:port %q: %w", s, err)
	}
	if host == "" || port == "" {
		return "", "", fmt.Errorf("invalid host:port %q", s)
	}
	return host, port, nil
}

// newHTTPClient 为代理构建HTTP客户端
func newHTTPClient(proxyURL *url.URL) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL.Scheme == "socks5" {
		// SOCKS5走专用拨号器
		var auth *xproxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &xproxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		if dialer, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, xproxy.Direct); err == nil {
			transport.Dial = dialer.Dial
			transport.DialContext = nil
		}
	} else {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   clientTimeout,
	}
}
