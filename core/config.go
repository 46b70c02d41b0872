package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv 读取环境变量，空值时返回默认值
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvInt64 读取整型环境变量
func GetEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvFloat 读取浮点环境变量
func GetEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// LoadLines 读取按行分隔的列表文件
// 跳过空行和 # 开头的注释行
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// SplitList 拆分逗号分隔的配置值
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PromptRepetitions 启动时询问每个钱包的重复次数
// 空输入或非法输入时使用默认值1
func PromptRepetitions(in io.Reader, out io.Writer) int {
	fmt.Fprint(out, "每个钱包执行次数 [默认1]: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return 1
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 1
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Sleep 可中断的延时，返回false表示被取消
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// MaskCredential 凭证脱敏: 只保留短前缀，绝不输出完整内容
func MaskCredential(cred string) string {
	if len(cred) <= 6 {
		return "***"
	}
	return cred[:6] + "..."
}
