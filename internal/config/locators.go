package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultLocatorsFile 默认定位配置文件路径
	DefaultLocatorsFile = "configs/locators.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed locators_template.yaml
var defaultLocatorsTemplate string

// Locators 登录页元素的XPath
type Locators struct {
	LoginButton   string `mapstructure:"login_button"`
	PasswordTab   string `mapstructure:"password_tab"`
	CaptchaImage  string `mapstructure:"captcha_image"`
	UsernameInput string `mapstructure:"username_input"`
	PasswordInput string `mapstructure:"password_input"`
	CaptchaInput  string `mapstructure:"captcha_input"`
	SubmitButton  string `mapstructure:"submit_button"`
}

// LoginPage 登录页定位与判定规则
type LoginPage struct {
	Locators        Locators `mapstructure:"locators"`
	FailureTexts    []string `mapstructure:"failure_texts"`
	LoginURLMarkers []string `mapstructure:"login_url_markers"`
}

// FormInputs 返回登录表单的三个输入框,用于判断表单是否仍在页面上
func (p *LoginPage) FormInputs() []string {
	return []string{p.Locators.UsernameInput, p.Locators.PasswordInput, p.Locators.CaptchaInput}
}

// validate 检查必填定位
func (p *LoginPage) validate() error {
	required := map[string]string{
		"login_button":   p.Locators.LoginButton,
		"captcha_image":  p.Locators.CaptchaImage,
		"username_input": p.Locators.UsernameInput,
		"password_input": p.Locators.PasswordInput,
		"captcha_input":  p.Locators.CaptchaInput,
		"submit_button":  p.Locators.SubmitButton,
	}
	for name, xpath := range required {
		if xpath == "" {
			return fmt.Errorf("定位 %s 不能为空", name)
		}
	}
	if len(p.LoginURLMarkers) == 0 {
		return errors.New("login_url_markers 不能为空")
	}
	return nil
}

// LocatorsLoader 定位配置加载器
type LocatorsLoader struct {
	configPath string
}

// NewLocatorsLoader 创建定位配置加载器
func NewLocatorsLoader(configPath string) *LocatorsLoader {
	if configPath == "" {
		configPath = DefaultLocatorsFile
	}
	return &LocatorsLoader{
		configPath: configPath,
	}
}

// Path 配置文件路径
func (l *LocatorsLoader) Path() string {
	return l.configPath
}

// EnsureConfigExists 确保配置文件存在,如不存在则自动生成模板
func (l *LocatorsLoader) EnsureConfigExists() error {
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(l.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}

		if err := os.WriteFile(l.configPath, []byte(defaultLocatorsTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成配置文件 [%s]: %w", l.configPath, err)
		}
		utils.Infof("已生成定位配置模板: %s", l.configPath)
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (l *LocatorsLoader) ValidateFileSize() error {
	info, err := os.Stat(l.configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", l.configPath, err)
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: l.configPath,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}

	return nil
}

// Load 加载定位配置
// 执行流程:
//  1. 确保配置文件存在 (不存在则用内置模板生成)
//  2. 验证文件大小
//  3. 使用Viper解析YAML
//  4. 校验必填定位
func (l *LocatorsLoader) Load() (*LoginPage, error) {
	if err := l.EnsureConfigExists(); err != nil {
		return nil, err
	}

	if err := l.ValidateFileSize(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(l.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 文件被其他进程锁定时退回内置模板
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("配置文件被锁定 [%s], 使用内置定位", l.configPath)
			return DefaultLoginPage()
		}

		return nil, &models.ConfigError{
			FilePath: l.configPath,
			Cause:    err,
		}
	}

	return decodeLoginPage(v, l.configPath)
}

// DefaultLoginPage 解析内置模板
func DefaultLoginPage() (*LoginPage, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(defaultLocatorsTemplate)); err != nil {
		return nil, &models.ConfigError{FilePath: "<embedded>", Cause: err}
	}
	return decodeLoginPage(v, "<embedded>")
}

func decodeLoginPage(v *viper.Viper, source string) (*LoginPage, error) {
	var page LoginPage
	if err := v.Unmarshal(&page); err != nil {
		return nil, &models.ConfigError{
			FilePath: source,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}

	if err := page.validate(); err != nil {
		return nil, &models.ConfigError{FilePath: source, Field: "locators", Cause: err}
	}

	return &page, nil
}
