package main

import (
	"fmt"
	"os"

	"sealbot/security"
)

// 调试工具: 校验钱包凭证能否解析，输出派生地址
// 用法: checkkey <credential>
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "用法: checkkey <credential>")
		os.Exit(1)
	}

	identity, err := security.Resolve(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 解析失败: %v\n", err)
		os.Exit(1)
	}
	defer identity.Destroy()

	fmt.Printf("✅ 地址: %s\n", identity.Address)
}
