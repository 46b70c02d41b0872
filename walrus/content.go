package walrus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"sealbot/proxy"
)

// ErrContentNotFound 本地内容文件不存在
var ErrContentNotFound = errors.New("content file not found")

// ContentSpec 上传内容来源
// 解析顺序: 内存缓冲 → URL → 本地文件路径
type ContentSpec struct {
	Data []byte // 内存内容，优先
	Ref  string // URL或本地路径
}

// ContentSource 内容获取器
// 远程内容走代理拉取并用LRU缓存，避免每次重复下载同一个URL
type ContentSource struct {
	rotator *proxy.Rotator
	cache   *lru.Cache[string, []byte]
	logger  *zap.Logger
}

const contentCacheSize = 32

// NewContentSource 创建内容获取器
func NewContentSource(rotator *proxy.Rotator, logger *zap.Logger) *ContentSource {
	cache, _ := lru.New[string, []byte](contentCacheSize)
	return &ContentSource{
		rotator: rotator,
		cache:   cache,
		logger:  logger,
	}
}

// Resolve 解析内容来源，返回待上传的字节
func (c *ContentSource) Resolve(ctx context.Context, spec ContentSpec) ([]byte, error) {
	if len(spec.Data) > 0 {
		return spec.Data, nil
	}
	if spec.Ref == "" {
		return nil, errors.New("empty content spec")
	}

	if isURL(spec.Ref) {
		return c.fetchURL(ctx, spec.Ref)
	}
	return readLocal(spec.Ref)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// fetchURL 通过代理拉取远程内容，命中缓存时不发请求
func (c *ContentSource) fetchURL(ctx context.Context, url string) ([]byte, error) {
	if data, ok := c.cache.Get(url); ok {
		c.logger.Debug("🔍 内容缓存命中", zap.String("url", url))
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := http.DefaultClient
	if c.rotator != nil {
		client = c.rotator.NextClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch content: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}

	c.cache.Add(url, data)
	c.logger.Info("📥 远程内容已下载",
		zap.String("url", url),
		zap.Int("bytes", len(data)))
	return data, nil
}

// readLocal 读取本地文件，区分"文件不存在"和其他IO错误
func readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, path)
		}
		return nil, fmt.Errorf("read content file %s: %w", path, err)
	}
	return data, nil
}
