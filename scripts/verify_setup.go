package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/config"
	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/redis/go-redis/v9"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  WxSpider 运行环境检查")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 配置文件
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ 配置加载成功")

	if err := cfg.ValidateLogin(); err != nil {
		fmt.Printf("⚠️  登录凭据不完整, login 命令不可用: %v\n", err)
	} else {
		fmt.Println("✅ 登录与打码平台凭据已配置")
	}

	// 元素定位配置
	loader := config.NewLocatorsLoader(cfg.Login.LocatorsFile)
	if _, err := os.Stat(loader.Path()); err != nil {
		fmt.Printf("⚠️  定位配置 %s 不存在, 首次运行 login 时自动生成\n", loader.Path())
	} else if _, err := loader.Load(); err != nil {
		fmt.Printf("❌ 定位配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 定位配置: %s\n", loader.Path())
	}

	// 浏览器
	if cfg.Browser.Bin != "" {
		if _, err := os.Stat(cfg.Browser.Bin); err != nil {
			fmt.Printf("❌ 浏览器不存在: %s\n", cfg.Browser.Bin)
			allOK = false
		} else {
			fmt.Printf("✅ 浏览器: %s\n", cfg.Browser.Bin)
		}
	} else if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium, 首次登录时会自动下载")
	}

	// Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		if cfg.Spider.Queue == "redis" {
			fmt.Printf("❌ Redis连接失败 [%s]: %v\n", cfg.Redis.Addr, err)
			allOK = false
		} else {
			fmt.Printf("⚠️  Redis不可用 [%s], 仅能使用memory队列\n", cfg.Redis.Addr)
		}
	} else {
		fmt.Printf("✅ Redis: %s db=%d\n", cfg.Redis.Addr, cfg.Redis.DB)
		if n, err := rdb.LLen(ctx, cfg.Redis.Keys.Items).Result(); err == nil {
			fmt.Printf("   已有题目: %d\n", n)
		}
	}

	// Cookie
	if _, err := os.Stat(cfg.Paths.CookieLatestFile()); err != nil {
		fmt.Println("⚠️  尚无Cookie文件, 请先运行 'wxspider login --once'")
	} else {
		fmt.Printf("✅ Cookie: %s\n", cfg.Paths.CookieLatestFile())
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境检查通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'wxspider login --once' 获取Cookie")
		fmt.Println("  2. 运行 'wxspider crawl' 开始抓取")
		fmt.Println("  3. 运行 'wxspider export md' 导出结果")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境检查失败,请解决上述问题。")
		os.Exit(1)
	}
}
