// Package captcha 超级鹰打码平台客户端
//
// 平台接收验证码图片,返回识别文本和pic_id; 识别错误时可凭pic_id报错返分。
package captcha

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/utils"
)

const (
	// DefaultUploadURL 识别接口
	DefaultUploadURL = "http://upload.chaojiying.net/Upload/Processing.php"
	// DefaultReportURL 报错接口
	DefaultReportURL = "http://upload.chaojiying.net/Upload/ReportError.php"
	// DefaultCodeType 默认验证码类型
	DefaultCodeType = "8001"

	clientUserAgent = "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 5.1; Trident/4.0)"
	requestTimeout  = 10 * time.Second
)

// 本地错误码,与平台返回的err_no共用一个取值空间
const (
	CodeOK           = 0
	CodeOther        = -1 // 其它异常
	CodeFileNotFound = -2 // 图片文件不存在
	CodeReadFailed   = -3 // 图片读取失败
	CodeTimeout      = -4 // 请求超时
)

// ErrEmptyResult 平台返回成功但识别文本为空
var ErrEmptyResult = errors.New("打码平台返回空验证码")

// SolverError 打码失败
type SolverError struct {
	Code int
	Msg  string
}

// Error 实现error接口
func (e *SolverError) Error() string {
	return fmt.Sprintf("打码失败 (err_no=%d): %s", e.Code, e.Msg)
}

// Timeout 是否为请求超时
func (e *SolverError) Timeout() bool {
	return e.Code == CodeTimeout
}

// Result 平台返回结果
type Result struct {
	ErrNo  int    `json:"err_no"`
	ErrStr string `json:"err_str"`
	PicID  string `json:"pic_id"`
	PicStr string `json:"pic_str"`
	MD5    string `json:"md5"`
}

// Solver 验证码识别接口
type Solver interface {
	// Solve 识别图片,返回识别文本和pic_id
	Solve(ctx context.Context, image []byte) (text string, picID string, err error)
	// ReportError 报告识别错误
	ReportError(ctx context.Context, picID string) error
}

// Config 客户端配置
type Config struct {
	Username  string
	Password  string // 明文,客户端内部转为md5
	SoftID    string
	CodeType  string
	UploadURL string
	ReportURL string
}

// Client 超级鹰客户端
type Client struct {
	username   string
	pass2      string
	softID     string
	codeType   string
	uploadURL  string
	reportURL  string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	sum := md5.Sum([]byte(cfg.Password))

	c := &Client{
		username:   cfg.Username,
		pass2:      hex.EncodeToString(sum[:]),
		softID:     cfg.SoftID,
		codeType:   cfg.CodeType,
		uploadURL:  cfg.UploadURL,
		reportURL:  cfg.ReportURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	if c.codeType == "" {
		c.codeType = DefaultCodeType
	}
	if c.uploadURL == "" {
		c.uploadURL = DefaultUploadURL
	}
	if c.reportURL == "" {
		c.reportURL = DefaultReportURL
	}

	utils.Debugf("打码客户端初始化完成: user=%s softid=%s codetype=%s", c.username, c.softID, c.codeType)
	return c
}

// Solve 实现Solver接口
// err_no非0或识别文本为空都视为失败
func (c *Client) Solve(ctx context.Context, image []byte) (string, string, error) {
	res, err := c.RecognizeBytes(ctx, image)
	if err != nil {
		return "", "", err
	}

	text := strings.TrimSpace(res.PicStr)
	if text == "" {
		return "", res.PicID, ErrEmptyResult
	}

	utils.Infof("打码识别成功: %s (ID: %s)", text, res.PicID)
	return text, res.PicID, nil
}

// RecognizeFile 识别图片文件
func (c *Client) RecognizeFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SolverError{Code: CodeFileNotFound, Msg: fmt.Sprintf("文件不存在: %s", path)}
		}
		return nil, &SolverError{Code: CodeReadFailed, Msg: fmt.Sprintf("读取文件失败: %v", err)}
	}
	return c.RecognizeBytes(ctx, data)
}

// RecognizeBytes 以multipart方式上传图片
func (c *Client) RecognizeBytes(ctx context.Context, image []byte) (*Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for key, value := range c.baseParams() {
		if err := w.WriteField(key, value); err != nil {
			return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
		}
	}
	if err := w.WriteField("codetype", c.codeType); err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}

	part, err := w.CreateFormFile("userfile", "captcha.jpg")
	if err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}
	if _, err := part.Write(image); err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}

	return c.post(ctx, c.uploadURL, w.FormDataContentType(), &body)
}

// RecognizeBase64 以base64字段上传图片
func (c *Client) RecognizeBase64(ctx context.Context, b64 string) (*Result, error) {
	form := url.Values{}
	for key, value := range c.baseParams() {
		form.Set(key, value)
	}
	form.Set("codetype", c.codeType)
	form.Set("file_base64", b64)

	return c.post(ctx, c.uploadURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// ReportError 报告识别错误
func (c *Client) ReportError(ctx context.Context, picID string) error {
	if picID == "" {
		return nil
	}

	form := url.Values{}
	for key, value := range c.baseParams() {
		form.Set(key, value)
	}
	form.Set("id", picID)

	if _, err := c.post(ctx, c.reportURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode())); err != nil {
		return err
	}

	utils.Infof("已报告错误验证码 ID: %s", picID)
	return nil
}

// baseParams 每个请求都带的账号参数
func (c *Client) baseParams() map[string]string {
	return map[string]string{
		"user":   c.username,
		"pass2":  c.pass2,
		"softid": c.softID,
	}
}

// post 发送请求并解析平台返回
func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Connection", "Keep-Alive")
	req.Header.Set("User-Agent", clientUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &SolverError{Code: CodeTimeout, Msg: "请求超时"}
		}
		return nil, &SolverError{Code: CodeOther, Msg: err.Error()}
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &SolverError{Code: CodeOther, Msg: fmt.Sprintf("解析响应失败: %v", err)}
	}
	if res.ErrNo != CodeOK {
		return nil, &SolverError{Code: res.ErrNo, Msg: res.ErrStr}
	}

	return &res, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
