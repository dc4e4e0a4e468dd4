package crawlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// 错误类型定义
var (
	ErrBrowserCrashed  = errors.New("浏览器崩溃")
	ErrElementNotFound = errors.New("元素等待超时")
)

const (
	// typePause 点击输入框后、输入前的停顿
	typePause = 200 * time.Millisecond

	// imageQuality 元素截图的JPEG质量
	imageQuality = 90
)

// BrowserOptions 浏览器会话参数
type BrowserOptions struct {
	Headless        bool
	Bin             string // 为空时由launcher自动查找或下载
	NoSandbox       bool
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	PollInterval    time.Duration // 元素轮询间隔
	SettleDelay     time.Duration // 元素可见后的稳定等待
}

// BrowserSession 持有一个浏览器进程和一个标签页
// 由 OpenBrowser 创建,调用方必须 defer Close()
type BrowserSession struct {
	opts     BrowserOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

// OpenBrowser 启动浏览器并打开一个带反检测脚本的页面
func OpenBrowser(ctx context.Context, opts BrowserOptions) (session *BrowserSession, err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("启动浏览器panic: %v", r)
			err = fmt.Errorf("%w: %v", ErrBrowserCrashed, r)
		}
	}()

	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 60 * time.Second
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("ignore-certificate-errors")

	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight))
	}
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)

	return &BrowserSession{
		opts:     opts,
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

// Close 关闭浏览器并清理用户数据目录,可重复调用
func (s *BrowserSession) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		utils.Debugf("浏览器已关闭")
	})
	return s.closeErr
}

// Navigate 打开URL并等待load事件
func (s *BrowserSession) Navigate(url string) error {
	p := s.page.Timeout(s.opts.PageLoadTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	return nil
}

// waitVisible 轮询直到元素存在且可见,然后等待稳定
func (s *BrowserSession) waitVisible(xpath string, timeout time.Duration) (*rod.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		has, el, err := s.page.HasX(xpath)
		if err != nil {
			return nil, fmt.Errorf("查找元素失败 [%s]: %w", xpath, err)
		}
		if has {
			if visible, verr := el.Visible(); verr == nil && visible {
				if s.opts.SettleDelay > 0 {
					time.Sleep(s.opts.SettleDelay)
				}
				return el, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s (%v)", ErrElementNotFound, xpath, timeout)
		}
		time.Sleep(s.opts.PollInterval)
	}
}

// WaitVisible 等待元素可见
func (s *BrowserSession) WaitVisible(xpath string, timeout time.Duration) error {
	_, err := s.waitVisible(xpath, timeout)
	return err
}

// Click 等待元素可见后点击
func (s *BrowserSession) Click(xpath string, timeout time.Duration) error {
	el, err := s.waitVisible(xpath, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击失败 [%s]: %w", xpath, err)
	}
	return nil
}

// TypeInto 点击输入框,短暂停顿后输入文本
func (s *BrowserSession) TypeInto(xpath, text string, timeout time.Duration) error {
	el, err := s.waitVisible(xpath, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击输入框失败 [%s]: %w", xpath, err)
	}
	time.Sleep(typePause)
	if err := el.Input(text); err != nil {
		return fmt.Errorf("输入失败 [%s]: %w", xpath, err)
	}
	return nil
}

// WaitImageLoaded 轮询图片的 complete 和 naturalWidth
// 超时返回false,不视为错误
func (s *BrowserSession) WaitImageLoaded(xpath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		has, el, err := s.page.HasX(xpath)
		if err == nil && has {
			res, err := el.Eval(`() => this.complete && this.naturalWidth > 0`)
			if err == nil && res.Value.Bool() {
				return true
			}
		}
		time.Sleep(s.opts.PollInterval)
	}
	return false
}

// ScreenshotElement 截取单个元素为JPEG
func (s *BrowserSession) ScreenshotElement(xpath, path string) error {
	has, el, err := s.page.HasX(xpath)
	if err != nil {
		return fmt.Errorf("查找元素失败 [%s]: %w", xpath, err)
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrElementNotFound, xpath)
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatJpeg, imageQuality)
	if err != nil {
		return fmt.Errorf("元素截图失败: %w", err)
	}
	return writeFile(path, data)
}

// Screenshot 整页截图为PNG
func (s *BrowserSession) Screenshot(path string) error {
	data, err := s.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("页面截图失败: %w", err)
	}
	return writeFile(path, data)
}

// URL 当前页面地址
func (s *BrowserSession) URL() (string, error) {
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("获取页面信息失败: %w", err)
	}
	return info.URL, nil
}

// HasAnyText 页面上是否有可见元素的文本包含任一模式
// script/style 以及隐藏元素中的文本不计入
func (s *BrowserSession) HasAnyText(patterns []string) (bool, error) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		els, err := s.page.ElementsX(textXPath(p))
		if err != nil {
			return false, fmt.Errorf("查找页面文本失败 [%s]: %w", p, err)
		}
		for _, el := range els {
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
			if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
				return true, nil
			}
		}
	}
	return false, nil
}

// textXPath 直接文本包含pattern的元素,排除脚本和样式
func textXPath(pattern string) string {
	return fmt.Sprintf(`//*[not(self::script) and not(self::style) and contains(text(), %s)]`, xpathLiteral(pattern))
}

// xpathLiteral 把任意字符串转为XPath 1.0字符串字面量
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Exists 元素当前是否存在,不等待
func (s *BrowserSession) Exists(xpath string) bool {
	has, _, err := s.page.HasX(xpath)
	return err == nil && has
}

// Cookies 读取当前页面可见的全部Cookie
func (s *BrowserSession) Cookies() (map[string]string, error) {
	cookies, err := s.page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("读取Cookie失败: %w", err)
	}

	result := make(map[string]string, len(cookies))
	for _, c := range cookies {
		result[c.Name] = c.Value
	}
	return result, nil
}

// writeFile 写文件,自动创建目录
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", path, err)
	}
	return nil
}
