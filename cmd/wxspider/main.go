package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile string
	verbose    bool
	logLevel   string
)

// appConfig 在PersistentPreRunE中加载,之后只读
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "wxspider",
	Short: "题库登录与抓取工具",
	Long: `WxSpider - 题库自动登录、分布式抓取与导出工具

包含以下功能:
  • 浏览器自动登录 + 打码平台识别验证码,定时刷新Cookie
  • 基于Redis的持久化抓取队列,多进程共享,断点续爬
  • 章节/考点树解析,题目JSON扁平化
  • 导出到 Markdown / MySQL / PostgreSQL / MongoDB / CSV

使用示例:
  # 启动登录服务 (每12小时刷新一次Cookie)
  wxspider login

  # 只登录一次
  wxspider login --once

  # 抓取 (队列为空时自动写入起始URL)
  wxspider crawl --workers 8

  # 导出为Markdown
  wxspider export md

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version 不需要配置
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = config

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("WxSpider %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// newRedisClient 连接Redis并检查连通性
func newRedisClient(ctx context.Context, cfg *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("连接Redis失败 [%s]: %w", cfg.Redis.Addr, err)
	}
	utils.Debugf("已连接Redis: %s db=%d", cfg.Redis.Addr, cfg.Redis.DB)
	return rdb, nil
}

// queueKeys 配置中的Redis key
func queueKeys(cfg *core.Config) crawlers.QueueKeys {
	return crawlers.QueueKeys{
		StartURLs:  cfg.Redis.Keys.StartURLs,
		Requests:   cfg.Redis.Keys.Requests,
		Dupefilter: cfg.Redis.Keys.Dupefilter,
		Items:      cfg.Redis.Keys.Items,
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Ctrl+C / SIGTERM 取消根context,各命令自行收尾
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
