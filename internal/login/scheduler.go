package login

import (
	"context"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// FailureThreshold 连续失败轮数达到该值后开始递增等待
	FailureThreshold = 3

	// failureCooldown 未达阈值时每轮失败后的等待
	failureCooldown = time.Hour

	// maxFailureCooldown 递增等待上限
	maxFailureCooldown = 24 * time.Hour

	// panicCooldown 循环体异常后的等待
	panicCooldown = 5 * time.Minute
)

// AttemptRunner 执行一次登录尝试
type AttemptRunner interface {
	FetchOnce(ctx context.Context) (*models.LoginAttempt, error)
}

// RetryBackoff 第attempt次尝试(从0开始)失败后的等待,随次数线性增长
func RetryBackoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt+1)
}

// FailureCooldown 一轮重试全部失败后的等待
// 连续失败 c >= 3 轮时为 min(c小时, 24小时),否则1小时
func FailureCooldown(consecutive int) time.Duration {
	if consecutive < FailureThreshold {
		return failureCooldown
	}
	wait := time.Duration(consecutive) * time.Hour
	if wait > maxFailureCooldown {
		wait = maxFailureCooldown
	}
	return wait
}

// Scheduler 周期性获取Cookie
type Scheduler struct {
	runner      AttemptRunner
	maxRetries  int
	retryDelay  time.Duration
	runInterval time.Duration

	sleep               SleepFunc
	consecutiveFailures int
	log                 zerolog.Logger
}

// NewScheduler 创建调度器
func NewScheduler(cfg *core.Config, runner AttemptRunner) *Scheduler {
	return &Scheduler{
		runner:      runner,
		maxRetries:  cfg.Login.MaxRetries,
		retryDelay:  cfg.Login.RetryDelay,
		runInterval: cfg.Login.RunInterval,
		sleep:       Sleep,
		log:         utils.With("login-scheduler"),
	}
}

// ConsecutiveFailures 连续失败轮数
func (s *Scheduler) ConsecutiveFailures() int {
	return s.consecutiveFailures
}

// RunCycle 执行一轮,最多 maxRetries 次尝试
// 返回是否成功;只有context取消时返回错误
func (s *Scheduler) RunCycle(ctx context.Context) (bool, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		s.log.Info().Msgf("第 %d/%d 次尝试获取Cookie", attempt+1, s.maxRetries)

		result, err := s.runner.FetchOnce(ctx)
		if err == nil {
			return true, nil
		}

		event := s.log.Warn().Err(err)
		if result != nil {
			event = event.Str("outcome", string(result.Outcome))
		}
		event.Msgf("第 %d 次尝试失败", attempt+1)

		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if attempt < s.maxRetries-1 {
			wait := RetryBackoff(s.retryDelay, attempt)
			s.log.Info().Msgf("等待 %s 后重试", utils.FormatDuration(wait))
			if err := s.sleep(ctx, wait); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// RunForever 循环获取Cookie直到context取消
// 失败不会结束循环,只会拉长等待
func (s *Scheduler) RunForever(ctx context.Context) error {
	s.log.Info().
		Str("interval", utils.FormatDuration(s.runInterval)).
		Int("max_retries", s.maxRetries).
		Msg("Cookie定时获取服务启动")

	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("收到停止信号,服务退出")
			return nil
		}

		wait := s.cycle(ctx)
		if ctx.Err() != nil {
			s.log.Info().Msg("收到停止信号,服务退出")
			return nil
		}

		s.log.Info().Msgf("下次运行: %s 后", utils.FormatDuration(wait))
		if err := s.sleep(ctx, wait); err != nil {
			s.log.Info().Msg("收到停止信号,服务退出")
			return nil
		}
	}
}

// cycle 执行一轮并返回下一轮前的等待;循环体panic时等待5分钟
func (s *Scheduler) cycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("调度循环异常")
			wait = panicCooldown
		}
	}()

	ok, err := s.RunCycle(ctx)
	if err != nil {
		return 0
	}

	if ok {
		s.consecutiveFailures = 0
		s.log.Info().Msg("✅ 本轮Cookie获取成功")
		return s.runInterval
	}

	s.consecutiveFailures++
	s.log.Error().Int("consecutive_failures", s.consecutiveFailures).Msg("❌ 本轮Cookie获取失败")
	return FailureCooldown(s.consecutiveFailures)
}
