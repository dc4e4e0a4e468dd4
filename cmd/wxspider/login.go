package main

import (
	"fmt"

	"github.com/RecoveryAshes/WxSpider/internal/captcha"
	"github.com/RecoveryAshes/WxSpider/internal/config"
	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/login"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/spf13/cobra"
)

var (
	loginOnce bool
	headless  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "自动登录并定时刷新Cookie",
	Long: `打开浏览器登录,验证码交给打码平台识别,成功后保存Cookie到 results/cookies。

默认每 login.run_interval (12小时) 执行一次,连续失败时逐步延长冷却时间。
账号和打码平台凭据可以写在 .env 中:
  WXSPIDER_LOGIN_USERNAME / WXSPIDER_LOGIN_PASSWORD
  WXSPIDER_SOLVER_USERNAME / WXSPIDER_SOLVER_PASSWORD / WXSPIDER_SOLVER_SOFT_ID`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var overrides core.Overrides
		if cmd.Flags().Changed("headless") {
			overrides.Headless = &headless
		}
		cfg := appConfig.WithOverrides(overrides)

		// 凭据缺失属于启动期错误
		if err := cfg.ValidateLogin(); err != nil {
			return err
		}

		loader := config.NewLocatorsLoader(cfg.Login.LocatorsFile)
		if err := loader.EnsureConfigExists(); err != nil {
			return err
		}
		page, err := loader.Load()
		if err != nil {
			return fmt.Errorf("加载定位配置失败: %w", err)
		}

		solver := captcha.NewClient(captcha.Config{
			Username:  cfg.Solver.Username,
			Password:  cfg.Solver.Password,
			SoftID:    cfg.Solver.SoftID,
			CodeType:  cfg.Solver.CodeType,
			UploadURL: cfg.Solver.UploadURL,
			ReportURL: cfg.Solver.ReportURL,
		})

		redactor := utils.NewRedactor()
		utils.Infof("登录账号: %s, 打码账号: %s", cfg.Login.Username, cfg.Solver.Username)
		utils.Debugf("登录密码: %s", redactor.RedactValue("password", cfg.Login.Password))

		fetcher := login.NewFetcher(cfg, page, login.NewBrowserFactory(cfg), solver).
			WithResourceMonitor(core.NewResourceMonitor(cfg))
		scheduler := login.NewScheduler(cfg, fetcher)

		if loginOnce {
			ok, err := scheduler.RunCycle(ctx)
			if err != nil {
				utils.Warn("登录已中断")
				return nil
			}
			if !ok {
				return fmt.Errorf("登录失败: 重试 %d 次后仍未成功", cfg.Login.MaxRetries)
			}
			utils.Infof("✨ Cookie已保存: %s", fetcher.CookieWriter().LatestPath())
			return nil
		}

		return scheduler.RunForever(ctx)
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginOnce, "once", false, "只执行一轮登录 (含重试) 后退出")
	loginCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")

	rootCmd.AddCommand(loginCmd)
}
