package login

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/captcha"
	"github.com/RecoveryAshes/WxSpider/internal/config"
	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/rs/zerolog"
)

// 错误类型定义
var (
	ErrCaptchaFailed = errors.New("验证码识别失败")
	ErrFormElement   = errors.New("登录表单元素缺失")
	ErrLoginRejected = errors.New("登录被拒绝")
)

// captchaTempName 验证码截图文件名,每次尝试覆盖
const captchaTempName = "captcha_temp.jpg"

// Browser 登录流程用到的浏览器操作,元素均以XPath定位
// *crawlers.BrowserSession 实现了该接口
type Browser interface {
	Navigate(url string) error
	WaitVisible(xpath string, timeout time.Duration) error
	Click(xpath string, timeout time.Duration) error
	TypeInto(xpath, text string, timeout time.Duration) error
	WaitImageLoaded(xpath string, timeout time.Duration) bool
	ScreenshotElement(xpath, path string) error
	Screenshot(path string) error
	URL() (string, error)
	HasAnyText(patterns []string) (bool, error)
	Exists(xpath string) bool
	Cookies() (map[string]string, error)
	Close() error
}

// BrowserFactory 每次尝试创建一个新浏览器
type BrowserFactory func(ctx context.Context) (Browser, error)

// NewBrowserFactory 基于go-rod的浏览器工厂
func NewBrowserFactory(cfg *core.Config) BrowserFactory {
	opts := crawlers.BrowserOptions{
		Headless:        cfg.Browser.Headless,
		Bin:             cfg.Browser.Bin,
		NoSandbox:       cfg.Browser.NoSandbox,
		WindowWidth:     cfg.Browser.WindowWidth,
		WindowHeight:    cfg.Browser.WindowHeight,
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		PollInterval:    cfg.Login.PollInterval,
		SettleDelay:     time.Second,
	}
	return func(ctx context.Context) (Browser, error) {
		session, err := crawlers.OpenBrowser(ctx, opts)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// SleepFunc 可被context打断的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 默认等待实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher 执行单次登录尝试
type Fetcher struct {
	cfg     core.LoginConfig
	page    *config.LoginPage
	paths   core.PathsConfig
	browser BrowserFactory
	solver  captcha.Solver
	writer  *CookieWriter
	monitor *crawlers.ResourceMonitor

	sleep    SleepFunc
	now      func() time.Time
	jitter   func(time.Duration) time.Duration
	redactor *utils.Redactor
	log      zerolog.Logger
}

// NewFetcher 创建登录执行器
func NewFetcher(cfg *core.Config, page *config.LoginPage, browser BrowserFactory, solver captcha.Solver) *Fetcher {
	return &Fetcher{
		cfg:      cfg.Login,
		page:     page,
		paths:    cfg.Paths,
		browser:  browser,
		solver:   solver,
		writer:   NewCookieWriter(cfg.Paths.CookiesDir()),
		sleep:    Sleep,
		now:      time.Now,
		jitter:   randomJitter,
		redactor: utils.NewRedactor(),
		log:      utils.With("login"),
	}
}

// WithResourceMonitor 启动浏览器前检查系统资源
func (f *Fetcher) WithResourceMonitor(rm *crawlers.ResourceMonitor) *Fetcher {
	f.monitor = rm
	return f
}

// CookieWriter 返回Cookie写入器
func (f *Fetcher) CookieWriter() *CookieWriter {
	return f.writer
}

// randomJitter 返回 [d/2, d*3/2) 之间的随机时长
func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// FetchOnce 执行一次完整登录
// 浏览器在所有退出路径上关闭;任何失败都会留下错误截图
func (f *Fetcher) FetchOnce(ctx context.Context) (attempt *models.LoginAttempt, err error) {
	attempt = models.NewLoginAttempt(f.cfg.URL, f.cfg.Username)
	attempt.StartedAt = f.now()
	defer func() {
		attempt.FinishedAt = f.now()
		if err != nil {
			attempt.ErrorMessage = err.Error()
			if attempt.Outcome == models.OutcomeUnknown || attempt.Outcome == models.OutcomeSuccess {
				attempt.Outcome = outcomeOf(err)
			}
		}
	}()

	if f.monitor != nil {
		if ok, reason := f.monitor.CheckAvailability(); !ok {
			f.log.Warn().Str("reason", reason).Msg("系统资源紧张,仍尝试启动浏览器")
		}
	}

	browser, err := f.browser(ctx)
	if err != nil {
		return attempt, fmt.Errorf("启动浏览器失败: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			f.log.Debug().Err(cerr).Msg("关闭浏览器出错")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			f.log.Error().Interface("panic", r).Msg("浏览器操作panic")
			err = fmt.Errorf("%w: %v", crawlers.ErrBrowserCrashed, r)
			f.saveErrorScreenshot(browser)
		}
	}()

	if err = f.run(ctx, browser, attempt); err != nil {
		f.saveErrorScreenshot(browser)
		return attempt, err
	}

	attempt.Outcome = models.OutcomeSuccess
	return attempt, nil
}

// run 依次执行登录步骤
func (f *Fetcher) run(ctx context.Context, b Browser, attempt *models.LoginAttempt) error {
	loc := f.page.Locators

	// 打开登录入口
	f.log.Info().Str("url", f.cfg.URL).Msg("打开登录页")
	if err := b.Navigate(f.cfg.URL); err != nil {
		return err
	}
	if err := f.sleep(ctx, f.cfg.NavigateSettle); err != nil {
		return err
	}

	if err := b.Click(loc.LoginButton, f.cfg.ElementTimeout); err != nil {
		return fmt.Errorf("%w: 登录按钮: %w", ErrFormElement, err)
	}
	if err := f.sleep(ctx, f.cfg.NavigateSettle); err != nil {
		return err
	}

	// 密码登录标签不存在时继续
	if loc.PasswordTab != "" {
		if err := b.Click(loc.PasswordTab, f.cfg.ElementTimeout); err != nil {
			f.log.Warn().Err(err).Msg("未找到密码登录标签,继续")
		}
		if err := f.sleep(ctx, f.cfg.NavigateSettle); err != nil {
			return err
		}
	}

	// 验证码
	text, err := f.solveCaptcha(ctx, b, attempt)
	if err != nil {
		return err
	}

	// 填写表单: 用户名 -> 验证码 -> 密码
	fields := []struct {
		name  string
		xpath string
		value string
	}{
		{"用户名", loc.UsernameInput, f.cfg.Username},
		{"验证码", loc.CaptchaInput, text},
		{"密码", loc.PasswordInput, f.cfg.Password},
	}
	for _, field := range fields {
		if err := f.sleep(ctx, f.jitter(typePause)); err != nil {
			return err
		}
		if err := b.TypeInto(field.xpath, field.value, f.cfg.ElementTimeout); err != nil {
			return fmt.Errorf("%w: %s输入框: %w", ErrFormElement, field.name, err)
		}
		if err := f.sleep(ctx, f.cfg.InputSettle); err != nil {
			return err
		}
	}
	f.log.Debug().
		Str("username", f.cfg.Username).
		Str("password", f.redactor.RedactValue("password", f.cfg.Password)).
		Msg("表单已填写")

	// 提交按钮缺失时不中断,仍按页面状态判定
	if err := b.Click(loc.SubmitButton, f.cfg.ElementTimeout); err != nil {
		f.log.Warn().Err(err).Msg("未找到提交按钮,直接检查登录结果")
	}
	if err := f.sleep(ctx, f.cfg.SubmitSettle); err != nil {
		return err
	}

	// 判定
	snapshot, err := f.snapshot(b)
	if err != nil {
		return err
	}
	decision, reason := Classify(snapshot, f.page.LoginURLMarkers)
	f.log.Info().
		Str("url", snapshot.URL).
		Str("decision", decision.String()).
		Str("reason", string(reason)).
		Msg("登录结果判定")

	if decision != Verified {
		attempt.Outcome = models.OutcomeFormFailed
		f.reportCaptcha(ctx, attempt.SolverID)
		return fmt.Errorf("%w: %s", ErrLoginRejected, reason)
	}

	cookies, err := b.Cookies()
	if err != nil {
		return err
	}
	attempt.Cookies = cookies

	bundle := models.NewCookieBundle(cookies, f.cfg.Username, f.now())
	archive, err := f.writer.Persist(bundle)
	if err != nil {
		return err
	}

	f.log.Info().
		Int("count", len(cookies)).
		Str("file", archive).
		Str("cookies", f.redactor.RedactCookies(cookies)).
		Msg("Cookie已保存")
	return nil
}

// typePause 填写每个输入框前的基础停顿
const typePause = 300 * time.Millisecond

// solveCaptcha 截取验证码并识别,识别失败结束本次尝试
func (f *Fetcher) solveCaptcha(ctx context.Context, b Browser, attempt *models.LoginAttempt) (string, error) {
	xpath := f.page.Locators.CaptchaImage

	if err := b.WaitVisible(xpath, f.cfg.CaptchaTimeout); err != nil {
		return "", fmt.Errorf("%w: 验证码图片: %w", ErrFormElement, err)
	}
	if !b.WaitImageLoaded(xpath, f.cfg.ImageLoadTimeout) {
		f.log.Warn().Dur("timeout", f.cfg.ImageLoadTimeout).Msg("验证码图片加载超时,继续截图")
	}

	path := filepath.Join(f.paths.CaptchaDir(), captchaTempName)
	if err := b.ScreenshotElement(xpath, path); err != nil {
		return "", err
	}
	attempt.CaptchaImage = path

	image, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取验证码截图失败: %w", err)
	}

	text, picID, err := f.solver.Solve(ctx, image)
	attempt.SolverID = picID
	if err != nil {
		attempt.Outcome = models.OutcomeCaptchaFailed
		return "", fmt.Errorf("%w: %w", ErrCaptchaFailed, err)
	}
	if text == "" {
		attempt.Outcome = models.OutcomeCaptchaFailed
		return "", fmt.Errorf("%w: 识别结果为空", ErrCaptchaFailed)
	}

	attempt.CaptchaText = text
	f.log.Info().Str("text", text).Str("pic_id", picID).Msg("验证码识别成功")
	return text, nil
}

// snapshot 采集提交后的页面状态
func (f *Fetcher) snapshot(b Browser) (LoginSnapshot, error) {
	url, err := b.URL()
	if err != nil {
		return LoginSnapshot{}, err
	}

	failed, err := b.HasAnyText(f.page.FailureTexts)
	if err != nil {
		return LoginSnapshot{}, err
	}

	present := false
	for _, xpath := range f.page.FormInputs() {
		if b.Exists(xpath) {
			present = true
			break
		}
	}

	return LoginSnapshot{URL: url, FailureTextFound: failed, FormPresent: present}, nil
}

// reportCaptcha 报告识别错误,失败只记录日志
func (f *Fetcher) reportCaptcha(ctx context.Context, picID string) {
	if picID == "" {
		return
	}
	if err := f.solver.ReportError(ctx, picID); err != nil {
		f.log.Warn().Err(err).Str("pic_id", picID).Msg("报告验证码错误失败")
		return
	}
	f.log.Info().Str("pic_id", picID).Msg("已报告验证码识别错误")
}

// saveErrorScreenshot 保存错误截图,失败只记录日志
func (f *Fetcher) saveErrorScreenshot(b Browser) {
	name := fmt.Sprintf("error_%s.png", f.now().Format("20060102_150405"))
	path := filepath.Join(f.paths.ScreenshotsDir(), name)

	defer func() {
		if r := recover(); r != nil {
			f.log.Warn().Interface("panic", r).Msg("保存错误截图失败")
		}
	}()

	if err := b.Screenshot(path); err != nil {
		f.log.Warn().Err(err).Msg("保存错误截图失败")
		return
	}
	f.log.Info().Str("file", path).Msg("已保存错误截图")
}

// outcomeOf 将错误映射为尝试结果
func outcomeOf(err error) models.LoginOutcome {
	switch {
	case errors.Is(err, ErrCaptchaFailed):
		return models.OutcomeCaptchaFailed
	case errors.Is(err, ErrLoginRejected), errors.Is(err, ErrFormElement):
		if errors.Is(err, crawlers.ErrElementNotFound) {
			return models.OutcomeTimeout
		}
		return models.OutcomeFormFailed
	case errors.Is(err, crawlers.ErrElementNotFound), errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimeout
	default:
		return models.OutcomeUnknown
	}
}
