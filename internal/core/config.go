package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 WXSPIDER_LOGIN_PASSWORD
const EnvPrefix = "WXSPIDER"

// Config 应用程序配置
// LoadConfig之后只读,按值传给各组件构造函数
type Config struct {
	Login    LoginConfig    `mapstructure:"login"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Spider   SpiderConfig   `mapstructure:"spider"`
	Export   ExportConfig   `mapstructure:"export"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Resource ResourceConfig `mapstructure:"resource"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

// LoginConfig 登录配置
type LoginConfig struct {
	URL              string        `mapstructure:"url" validate:"required,url"`
	Username         string        `mapstructure:"username" validate:"required"`
	Password         string        `mapstructure:"password" validate:"required"`
	RunInterval      time.Duration `mapstructure:"run_interval" validate:"gt=0"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"gte=1,lte=20"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	ElementTimeout   time.Duration `mapstructure:"element_timeout" validate:"gt=0"`
	CaptchaTimeout   time.Duration `mapstructure:"captcha_timeout" validate:"gt=0"`
	PollInterval     time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ImageLoadTimeout time.Duration `mapstructure:"image_load_timeout" validate:"gt=0"`
	NavigateSettle   time.Duration `mapstructure:"navigate_settle"`
	InputSettle      time.Duration `mapstructure:"input_settle"`
	SubmitSettle     time.Duration `mapstructure:"submit_settle"`
	LocatorsFile     string        `mapstructure:"locators_file"`
}

// SolverConfig 打码平台配置
type SolverConfig struct {
	Username  string `mapstructure:"username" validate:"required"`
	Password  string `mapstructure:"password" validate:"required"`
	SoftID    string `mapstructure:"soft_id" validate:"required"`
	CodeType  string `mapstructure:"code_type" validate:"required"`
	UploadURL string `mapstructure:"upload_url"`
	ReportURL string `mapstructure:"report_url"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"`
	Bin             string        `mapstructure:"bin"`
	NoSandbox       bool          `mapstructure:"no_sandbox"`
	WindowWidth     int           `mapstructure:"window_width" validate:"gte=320"`
	WindowHeight    int           `mapstructure:"window_height" validate:"gte=240"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" validate:"gt=0"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string    `mapstructure:"addr" validate:"required"`
	Password string    `mapstructure:"password"`
	DB       int       `mapstructure:"db" validate:"gte=0"`
	Keys     RedisKeys `mapstructure:"keys"`
}

// RedisKeys 队列与记录使用的key
type RedisKeys struct {
	StartURLs  string `mapstructure:"start_urls" validate:"required"`
	Requests   string `mapstructure:"requests" validate:"required"`
	Dupefilter string `mapstructure:"dupefilter" validate:"required"`
	Items      string `mapstructure:"items" validate:"required"`
}

// SpiderConfig 爬虫配置
type SpiderConfig struct {
	Queue          string             `mapstructure:"queue" validate:"oneof=redis memory"`
	StartURL       string             `mapstructure:"start_url" validate:"required,url"`
	AllowedDomain  string             `mapstructure:"allowed_domain" validate:"required"`
	PostURL        string             `mapstructure:"post_url" validate:"required,url"`
	Concurrency    int                `mapstructure:"concurrency" validate:"gte=1,lte=256"`
	PerDomain      int                `mapstructure:"per_domain" validate:"gte=1,lte=256"`
	DownloadDelay  time.Duration      `mapstructure:"download_delay" validate:"gte=0"`
	RandomizeDelay bool               `mapstructure:"randomize_delay"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout" validate:"gt=0"`
	RetryTimes     int                `mapstructure:"retry_times" validate:"gte=0,lte=20"`
	RetryHTTPCodes []int              `mapstructure:"retry_http_codes"`
	IdleTimeout    time.Duration      `mapstructure:"idle_timeout" validate:"gte=0"`
	UserAgent      string             `mapstructure:"user_agent"`
	Headers        map[string]string  `mapstructure:"headers"`
	AutoThrottle   AutoThrottleConfig `mapstructure:"autothrottle"`
}

// AutoThrottleConfig 自适应限速配置
type AutoThrottleConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	StartDelay        time.Duration `mapstructure:"start_delay" validate:"gte=0"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	TargetConcurrency float64       `mapstructure:"target_concurrency" validate:"gt=0"`
}

// ExportConfig 导出配置
type ExportConfig struct {
	MarkdownDir string      `mapstructure:"markdown_dir"`
	BatchSize   int         `mapstructure:"batch_size" validate:"gte=1"`
	SQL         SQLConfig   `mapstructure:"sql"`
	Mongo       MongoConfig `mapstructure:"mongo"`
}

// SQLConfig 关系库配置
type SQLConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=mysql postgres"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// MongoConfig MongoDB配置
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// FeedConfig 新闻列表数据配置
type FeedConfig struct {
	ItemsKey string `mapstructure:"items_key"`
	CSVPath  string `mapstructure:"csv_path"`
}

// ResourceConfig 资源限制配置
type ResourceConfig struct {
	SafetyReserveMemory int `mapstructure:"safety_reserve_memory"` // MB
	SafetyThreshold     int `mapstructure:"safety_threshold"`      // MB
	CPULoadThreshold    int `mapstructure:"cpu_load_threshold"`    // %
	WorkerMemoryUsage   int `mapstructure:"worker_memory_usage"`   // MB
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// PathsConfig 结果目录
type PathsConfig struct {
	ResultsDir string `mapstructure:"results_dir"`
}

// CookiesDir Cookie保存目录
func (p PathsConfig) CookiesDir() string { return filepath.Join(p.ResultsDir, "cookies") }

// CaptchaDir 验证码图片目录
func (p PathsConfig) CaptchaDir() string { return filepath.Join(p.ResultsDir, "captchas") }

// ScreenshotsDir 错误截图目录
func (p PathsConfig) ScreenshotsDir() string { return filepath.Join(p.ResultsDir, "screenshots") }

// ReportsDir 报告目录
func (p PathsConfig) ReportsDir() string { return filepath.Join(p.ResultsDir, "reports") }

// CookieLatestFile 最新Cookie文件
func (p PathsConfig) CookieLatestFile() string {
	return filepath.Join(p.CookiesDir(), models.CookieLatestFilename)
}

// LoadConfig 加载配置文件
// 优先级: 默认值 < 配置文件 < .env / 环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &models.ConfigError{FilePath: ".env", Cause: err}
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wxspider"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在,使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置失败: %w", err)}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 登录
	v.SetDefault("login.url", "https://ks.wangxiao.cn/")
	v.SetDefault("login.username", "")
	v.SetDefault("login.password", "")
	v.SetDefault("login.run_interval", 12*time.Hour)
	v.SetDefault("login.max_retries", 3)
	v.SetDefault("login.retry_delay", 300*time.Second)
	v.SetDefault("login.element_timeout", 20*time.Second)
	v.SetDefault("login.captcha_timeout", 8*time.Second)
	v.SetDefault("login.poll_interval", 500*time.Millisecond)
	v.SetDefault("login.image_load_timeout", 10*time.Second)
	v.SetDefault("login.navigate_settle", 2*time.Second)
	v.SetDefault("login.input_settle", 500*time.Millisecond)
	v.SetDefault("login.submit_settle", 3*time.Second)
	v.SetDefault("login.locators_file", "configs/locators.yaml")

	// 打码平台
	v.SetDefault("solver.username", "")
	v.SetDefault("solver.password", "")
	v.SetDefault("solver.soft_id", "")
	v.SetDefault("solver.code_type", "8001")
	v.SetDefault("solver.upload_url", "http://upload.chaojiying.net/Upload/Processing.php")
	v.SetDefault("solver.report_url", "http://upload.chaojiying.net/Upload/ReportError.php")

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.page_load_timeout", 60*time.Second)

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 5)
	v.SetDefault("redis.keys.start_urls", "questions:url")
	v.SetDefault("redis.keys.requests", "questions:requests")
	v.SetDefault("redis.keys.dupefilter", "questions:dupefilter")
	v.SetDefault("redis.keys.items", "questions:items")

	// 爬虫
	v.SetDefault("spider.queue", "redis")
	v.SetDefault("spider.start_url", "https://ks.wangxiao.cn/")
	v.SetDefault("spider.allowed_domain", "ks.wangxiao.cn")
	v.SetDefault("spider.post_url", "https://ks.wangxiao.cn/practice/listQuestions")
	v.SetDefault("spider.concurrency", 16)
	v.SetDefault("spider.per_domain", 8)
	v.SetDefault("spider.download_delay", time.Second)
	v.SetDefault("spider.randomize_delay", true)
	v.SetDefault("spider.request_timeout", 30*time.Second)
	v.SetDefault("spider.retry_times", 5)
	v.SetDefault("spider.retry_http_codes", []int{500, 502, 503, 504, 522, 524, 408, 429, 403})
	v.SetDefault("spider.idle_timeout", 60*time.Second)
	v.SetDefault("spider.user_agent", "")
	v.SetDefault("spider.autothrottle.enabled", true)
	v.SetDefault("spider.autothrottle.start_delay", time.Second)
	v.SetDefault("spider.autothrottle.max_delay", 60*time.Second)
	v.SetDefault("spider.autothrottle.target_concurrency", 2.0)

	// 导出
	v.SetDefault("export.markdown_dir", "results/q_all")
	v.SetDefault("export.batch_size", 500)
	v.SetDefault("export.sql.driver", "mysql")
	v.SetDefault("export.sql.dsn", "")
	v.SetDefault("export.sql.table", "questions")
	v.SetDefault("export.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("export.mongo.database", "wangxiao")
	v.SetDefault("export.mongo.collection", "questions")

	// 新闻列表
	v.SetDefault("feed.items_key", "news:items")
	v.SetDefault("feed.csv_path", "results/news.csv")

	// 资源
	v.SetDefault("resource.safety_reserve_memory", 512)
	v.SetDefault("resource.safety_threshold", 256)
	v.SetDefault("resource.cpu_load_threshold", 90)
	v.SetDefault("resource.worker_memory_usage", 32)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "results/logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("paths.results_dir", "results")
}

var validate = validator.New()

// Validate 校验通用配置 (爬虫/Redis/导出)
func (c *Config) Validate() error {
	for name, section := range map[string]interface{}{
		"browser": c.Browser,
		"redis":   c.Redis,
		"spider":  c.Spider,
		"export":  c.Export,
	} {
		if err := validateSection(name, section); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLogin 登录服务额外要求账号和打码平台凭据
// 缺失属于启动期致命错误
func (c *Config) ValidateLogin() error {
	if err := validateSection("login", c.Login); err != nil {
		return err
	}
	return validateSection("solver", c.Solver)
}

// validateSection 校验单个配置段,把第一个字段错误转为ConfigError
func validateSection(name string, section interface{}) error {
	err := validate.Struct(section)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &models.ConfigError{
			Field: name + "." + fe.Field(),
			Cause: fmt.Errorf("校验失败: %s %s", fe.Tag(), fe.Param()),
		}
	}
	return &models.ConfigError{Field: name, Cause: err}
}

// Overrides 命令行参数覆盖项,零值表示不覆盖
type Overrides struct {
	Headless    *bool
	Queue       string
	Concurrency int
	IdleTimeout *time.Duration
}

// WithOverrides 返回应用命令行覆盖后的新配置,原配置不变
func (c *Config) WithOverrides(o Overrides) *Config {
	cp := *c

	if o.Headless != nil {
		cp.Browser.Headless = *o.Headless
	}
	if o.Queue != "" {
		cp.Spider.Queue = o.Queue
	}
	if o.Concurrency > 0 {
		cp.Spider.Concurrency = o.Concurrency
		if cp.Spider.PerDomain > o.Concurrency {
			cp.Spider.PerDomain = o.Concurrency
		}
	}
	if o.IdleTimeout != nil {
		cp.Spider.IdleTimeout = *o.IdleTimeout
	}
	cp.Spider.RetryHTTPCodes = append([]int(nil), c.Spider.RetryHTTPCodes...)

	return &cp
}
