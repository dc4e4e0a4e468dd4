package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func TestLocatorsLoader_Load(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "configs", "locators.yaml")
		loader := NewLocatorsLoader(configPath)

		page, err := loader.Load()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("配置文件应该被自动生成")
		}

		if page.Locators.LoginButton != `//*[@id="_login1"]` {
			t.Errorf("登录按钮定位错误: %s", page.Locators.LoginButton)
		}
		if page.Locators.CaptchaImage != `//*[@id="nimg-code"]/img` {
			t.Errorf("验证码图片定位错误: %s", page.Locators.CaptchaImage)
		}
		if !strings.Contains(page.Locators.PasswordTab, "密码登录") {
			t.Errorf("密码登录标签定位错误: %s", page.Locators.PasswordTab)
		}
		if len(page.FailureTexts) != 4 {
			t.Errorf("期望4条失败文本, 实际 %v", page.FailureTexts)
		}
		if len(page.LoginURLMarkers) != 5 {
			t.Errorf("期望5个登录URL片段, 实际 %v", page.LoginURLMarkers)
		}
	})

	t.Run("加载自定义定位", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "locators.yaml")
		content := `locators:
  login_button: '//button[@id="open"]'
  captcha_image: '//img[@id="code"]'
  username_input: '//input[@name="u"]'
  password_input: '//input[@name="p"]'
  captcha_input: '//input[@name="c"]'
  submit_button: '//button[@type="submit"]'
failure_texts: ["错误"]
login_url_markers: ["login"]
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		page, err := NewLocatorsLoader(configPath).Load()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if page.Locators.SubmitButton != `//button[@type="submit"]` {
			t.Errorf("提交按钮定位错误: %s", page.Locators.SubmitButton)
		}
		if page.Locators.PasswordTab != "" {
			t.Errorf("未配置的可选定位应为空: %s", page.Locators.PasswordTab)
		}
		inputs := page.FormInputs()
		if len(inputs) != 3 || inputs[0] != `//input[@name="u"]` {
			t.Errorf("表单输入框错误: %v", inputs)
		}
	})

	t.Run("缺少必填定位", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "locators.yaml")
		if err := os.WriteFile(configPath, []byte("locators:\n  login_button: '//a'\n"), 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		_, err := NewLocatorsLoader(configPath).Load()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("期望ConfigError, 实际 %v", err)
		}
	})

	t.Run("配置文件过大", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "locators.yaml")
		big := make([]byte, MaxConfigFileSize+1)
		for i := range big {
			big[i] = '#'
		}
		if err := os.WriteFile(configPath, big, 0644); err != nil {
			t.Fatalf("写入测试配置失败: %v", err)
		}

		if _, err := NewLocatorsLoader(configPath).Load(); err == nil {
			t.Error("超过大小限制应返回错误")
		}
	})
}

func TestDefaultLoginPage(t *testing.T) {
	page, err := DefaultLoginPage()
	if err != nil {
		t.Fatalf("解析内置模板失败: %v", err)
	}
	if page.Locators.SubmitButton != `//*[@id="login-normal"]` {
		t.Errorf("提交按钮定位错误: %s", page.Locators.SubmitButton)
	}
}

func TestNewLocatorsLoader_DefaultPath(t *testing.T) {
	if NewLocatorsLoader("").Path() != DefaultLocatorsFile {
		t.Error("空路径应使用默认路径")
	}
}
