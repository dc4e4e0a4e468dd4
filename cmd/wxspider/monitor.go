package main

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// monitorInterval 内存采样间隔
const monitorInterval = 5 * time.Second

var monitorSpec string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "定时输出队列状态",
	Long: `按cron表达式定时记录起始URL、待处理请求、去重集合和题目列表的长度,
以及本机内存压力。

示例:
  wxspider monitor --cron "@every 1m"
  wxspider monitor --cron "*/5 * * * *"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		if err := ValidateCronSpec(monitorSpec); err != nil {
			return err
		}

		rdb, err := newRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		scheduler := crawlers.NewRedisScheduler(rdb, queueKeys(cfg))
		defer scheduler.Close()

		resources := core.NewResourceMonitor(cfg)
		resources.StartMonitoring(monitorInterval)
		defer resources.StopMonitoring()

		report := func() {
			stats, err := scheduler.Stats(ctx)
			if err != nil {
				utils.Warnf("读取队列状态失败: %v", err)
				return
			}
			res := resources.Status()
			utils.Logger.Info().
				Int64("start_urls", stats.StartURLs).
				Int64("requests", stats.Requests).
				Int64("dupefilter", stats.Dupefilter).
				Int64("items", stats.Items).
				Str("memory", res.Pressure.String()).
				Float64("cpu", res.CPUPercent).
				Msg("📊 队列状态")
		}

		c := cron.New()
		if _, err := c.AddFunc(monitorSpec, report); err != nil {
			return fmt.Errorf("无效的cron表达式 %q: %w", monitorSpec, err)
		}

		report()
		c.Start()
		utils.Infof("队列监控已启动 (%s),Ctrl+C 退出", monitorSpec)

		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorSpec, "cron", "@every 30s", "统计间隔 (cron表达式)")

	rootCmd.AddCommand(monitorCmd)
}
