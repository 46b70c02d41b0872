package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sealbot/core"
	"sealbot/proxy"
)

// ErrNoPublishers 未配置存储发布端点，启动前置条件不满足
var ErrNoPublishers = errors.New("no publishers configured")

// ErrUploadExhausted 所有上传尝试均失败
var ErrUploadExhausted = errors.New("blob upload exhausted all attempts")

// UploaderConfig 上传器配置
type UploaderConfig struct {
	Publishers   []string      // 发布端点列表 (完整上传URL)
	MaxRetries   int           // 最大尝试次数，默认5
	Timeout      time.Duration // 单次请求超时，默认30s
	InitialDelay time.Duration // 首次重试延时下限，默认2s
	MaxDelay     time.Duration // 重试延时上限，默认30s
}

func (c *UploaderConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
}

// Uploader 多端点blob上传器
// 每次上传打乱端点顺序，失败按指数退避重试，重试超过端点数时回绕
type Uploader struct {
	config  UploaderConfig
	rotator *proxy.Rotator
	bus     *core.Bus
	stats   *core.Stats
	logger  *zap.Logger
	rng     *rand.Rand
}

// NewUploader 创建上传器，端点列表为空是致命配置错误
func NewUploader(config UploaderConfig, rotator *proxy.Rotator, bus *core.Bus, stats *core.Stats, logger *zap.Logger) (*Uploader, error) {
	if len(config.Publishers) == 0 {
		return nil, ErrNoPublishers
	}
	config.applyDefaults()
	return &Uploader{
		config:  config,
		rotator: rotator,
		bus:     bus,
		stats:   stats,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// shuffled 返回一份均匀随机打乱的端点顺序
func (u *Uploader) shuffled() []string {
	out := make([]string, len(u.config.Publishers))
	copy(out, u.config.Publishers)
	u.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// endpointFor 第attempt次尝试(从1起)使用的端点，超过端点数时回绕
func endpointFor(shuffled []string, attempt int) string {
	return shuffled[(attempt-1)%len(shuffled)]
}

// backoffDelay 第attempt次失败后的等待时间: 指数增长，封顶MaxDelay
func (u *Uploader) backoffDelay(attempt int) time.Duration {
	d := u.config.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= u.config.MaxDelay {
			return u.config.MaxDelay
		}
	}
	if d > u.config.MaxDelay {
		return u.config.MaxDelay
	}
	return d
}

// Upload 上传blob内容，返回存储网络分配的blobId
// 耗尽全部尝试后返回ErrUploadExhausted，调用方不应再重试
func (u *Uploader) Upload(ctx context.Context, content []byte, epochs int) (string, error) {
	endpoints := u.shuffled()
	var lastErr error

	for attempt := 1; attempt <= u.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		endpoint := endpointFor(endpoints, attempt)
		u.bus.Emit(core.LevelWait,
			fmt.Sprintf("上传blob 第%d/%d次尝试", attempt, u.config.MaxRetries),
			map[string]string{"endpoint": endpoint})
		if u.stats != nil {
			u.stats.UploadAttempts.Add(1)
		}

		blobID, err := u.tryUpload(ctx, endpoint, content, epochs)
		if err == nil {
			u.bus.Emit(core.LevelSuccess,
				fmt.Sprintf("✅ blob上传成功: %s", shortID(blobID)),
				map[string]string{"endpoint": endpoint, "size": fmt.Sprintf("%d", len(content))})
			if u.stats != nil {
				u.stats.UploadSuccess.Add(1)
				u.stats.BlobBytes.Add(int64(len(content)))
			}
			return blobID, nil
		}

		lastErr = err
		u.bus.Emit(core.LevelError,
			fmt.Sprintf("上传失败 (第%d次): %v", attempt, err),
			map[string]string{"endpoint": endpoint})
		u.logger.Warn("⚠️ blob上传尝试失败",
			zap.Int("attempt", attempt),
			zap.String("endpoint", endpoint),
			zap.Error(err))

		if attempt < u.config.MaxRetries {
			if !core.Sleep(ctx, u.backoffDelay(attempt)) {
				return "", ctx.Err()
			}
		}
	}

	if u.stats != nil {
		u.stats.UploadFailed.Add(1)
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrUploadExhausted, u.config.MaxRetries, lastErr)
}

// tryUpload 单次PUT上传
func (u *Uploader) tryUpload(ctx context.Context, endpoint string, content []byte, epochs int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s?epochs=%d", endpoint, epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := http.DefaultClient
	if u.rotator != nil {
		client = u.rotator.NextClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 120))
	}

	blobID, err := ParseBlobID(body)
	if err != nil {
		return "", err
	}
	return blobID, nil
}

// storeResponse 发布端点的三种成功响应形态
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
	BlobID string `json:"blobId"`
}

// ParseBlobID 容错解析上传响应
// 按优先级尝试: newlyCreated嵌套对象 → alreadyCertified嵌套对象 → 扁平blobId
func ParseBlobID(body []byte) (string, error) {
	var resp storeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unrecognized response: %s", truncate(string(body), 120))
	}
	switch {
	case resp.NewlyCreated != nil && resp.NewlyCreated.BlobObject.BlobID != "":
		return resp.NewlyCreated.BlobObject.BlobID, nil
	case resp.AlreadyCertified != nil && resp.AlreadyCertified.BlobID != "":
		return resp.AlreadyCertified.BlobID, nil
	case resp.BlobID != "":
		return resp.BlobID, nil
	default:
		return "", fmt.Errorf("no blobId in response: %s", truncate(string(body), 120))
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
