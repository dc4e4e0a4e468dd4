package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

const (
	// resultKey colly上下文中保存抓取结果的key
	resultKey = "fetch_result"

	// maxBodySize 单个响应体上限
	maxBodySize = 50 * 1024 * 1024
)

// ErrNoResponse 请求结束但没有收到响应
var ErrNoResponse = errors.New("请求无响应")

// DownloaderOptions 下载器参数
type DownloaderOptions struct {
	AllowedDomain  string // 为空时不限制
	Concurrency    int
	PerDomain      int
	Delay          time.Duration
	RandomizeDelay bool // 实际间隔在 0.5~1.5 倍 Delay 之间
	RequestTimeout time.Duration
	RetryTimes     int
	RetryHTTPCodes []int
	InsecureTLS    bool

	Headers  models.HeaderProvider
	Cookies  map[string]string // 附加到 WithCookie 节点
	Throttle *AutoThrottle     // 为nil时不做自适应限速
}

// Response 一次抓取的结果
type Response struct {
	Node       *models.CrawlNode
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
}

// fetchResult 在colly回调与Fetch之间传递结果
type fetchResult struct {
	status  int
	headers http.Header
	body    []byte
	started time.Time
	latency time.Duration // 到响应头的耗时
}

// Downloader 基于colly的同步下载器
// 多个worker可并发调用Fetch,并发上限由colly的LimitRule控制
type Downloader struct {
	collector *colly.Collector
	opts      DownloaderOptions
	retryable map[int]bool
	cookie    string
}

// NewDownloader 创建下载器
func NewDownloader(opts DownloaderOptions) (*Downloader, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PerDomain < 1 || opts.PerDomain > opts.Concurrency {
		opts.PerDomain = opts.Concurrency
	}

	collectorOpts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if opts.AllowedDomain != "" {
		collectorOpts = append(collectorOpts, colly.AllowedDomains(opts.AllowedDomain))
	}
	c := colly.NewCollector(collectorOpts...)
	c.MaxBodySize = maxBodySize

	// Cookie由登录服务产生,显式附加,不使用colly的cookie jar
	c.DisableCookies()

	if opts.InsecureTLS {
		c.WithTransport(&http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		})
	}

	if opts.RequestTimeout > 0 {
		c.SetRequestTimeout(opts.RequestTimeout)
	}

	delay, randomDelay := limitDelays(opts)

	// 第一条匹配的规则生效: 目标域名 > 其它
	if opts.AllowedDomain != "" {
		if err := c.Limit(&colly.LimitRule{
			DomainGlob:  opts.AllowedDomain,
			Parallelism: opts.PerDomain,
			Delay:       delay,
			RandomDelay: randomDelay,
		}); err != nil {
			return nil, fmt.Errorf("设置域名并发限制失败: %w", err)
		}
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Concurrency,
		Delay:       delay,
		RandomDelay: randomDelay,
	}); err != nil {
		return nil, fmt.Errorf("设置并发限制失败: %w", err)
	}

	retryable := make(map[int]bool, len(opts.RetryHTTPCodes))
	for _, code := range opts.RetryHTTPCodes {
		retryable[code] = true
	}

	d := &Downloader{
		collector: c,
		opts:      opts,
		retryable: retryable,
		cookie:    cookieHeader(opts.Cookies),
	}
	d.setupCallbacks()

	utils.Debugf("下载器: 并发=%d, 单域并发=%d, 延迟=%v, 随机=%v, 超时=%v",
		opts.Concurrency, opts.PerDomain, opts.Delay, opts.RandomizeDelay, opts.RequestTimeout)

	return d, nil
}

// limitDelays LimitRule的固定延迟和随机延迟
// 启用AutoThrottle时请求间隔完全由它控制,LimitRule只限并发
func limitDelays(opts DownloaderOptions) (delay, random time.Duration) {
	switch {
	case opts.Throttle != nil, opts.Delay <= 0:
		return 0, 0
	case opts.RandomizeDelay:
		return opts.Delay / 2, opts.Delay
	default:
		return opts.Delay, 0
	}
}

// setupCallbacks 设置Colly回调
func (d *Downloader) setupCallbacks() {
	d.collector.OnRequest(func(r *colly.Request) {
		if res, ok := r.Ctx.GetAny(resultKey).(*fetchResult); ok {
			res.started = time.Now()
		}
		utils.Debugf("请求: %s %s", r.Method, r.URL.String())
	})

	// 收到响应头即记录耗时,此时LimitRule的延迟尚未开始
	d.collector.OnResponseHeaders(func(r *colly.Response) {
		if res, ok := r.Ctx.GetAny(resultKey).(*fetchResult); ok {
			res.latency = time.Since(res.started)
		}
	})

	d.collector.OnResponse(func(r *colly.Response) {
		res, ok := r.Ctx.GetAny(resultKey).(*fetchResult)
		if !ok {
			return
		}

		body := r.Body
		if r.Headers != nil {
			encoding := r.Headers.Get("Content-Encoding")
			if encoding != "" {
				decompressed, err := decompressResponse(encoding, r.Body)
				if err != nil {
					utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, encoding, err)
				} else {
					body = decompressed
				}
			}
			res.headers = r.Headers.Clone()
		}

		res.status = r.StatusCode
		res.body = body
	})
}

// Fetch 下载一个节点,HTTP错误状态码不视为错误
func (d *Downloader) Fetch(ctx context.Context, node *models.CrawlNode) (*Response, error) {
	if d.opts.Throttle != nil {
		host := hostOf(node.URL)
		if err := d.opts.Throttle.Wait(ctx, host); err != nil {
			return nil, err
		}
	}

	res := &fetchResult{}
	cctx := colly.NewContext()
	cctx.Put(resultKey, res)

	var body io.Reader
	if node.Body != "" {
		body = strings.NewReader(node.Body)
	}

	err := d.collector.Request(node.Method, node.URL, body, cctx, d.headersFor(node))
	if err != nil {
		return nil, fmt.Errorf("请求失败 [%s %s]: %w", node.Method, node.URL, err)
	}
	if res.status == 0 {
		return nil, fmt.Errorf("%w [%s %s]", ErrNoResponse, node.Method, node.URL)
	}

	if d.opts.Throttle != nil {
		d.opts.Throttle.Observe(hostOf(node.URL), res.latency, res.status)
	}

	return &Response{
		Node:       node,
		StatusCode: res.status,
		Headers:    res.headers,
		Body:       res.body,
		Latency:    res.latency,
	}, nil
}

// headersFor 合并默认头部、节点头部和Cookie
func (d *Downloader) headersFor(node *models.CrawlNode) http.Header {
	hdr := make(http.Header)
	if d.opts.Headers != nil {
		for name, values := range d.opts.Headers.GetHeaders() {
			if len(values) > 0 {
				hdr.Set(name, values[0])
			}
		}
	}
	for name, value := range node.Headers {
		hdr.Set(name, value)
	}
	if node.WithCookie && d.cookie != "" {
		hdr.Set("Cookie", d.cookie)
	}
	return hdr
}

// ShouldRetry 判断是否需要重试: 网络/超时错误或状态码在重试列表中,且未达上限
// colly的域名、URL校验错误重试也不会成功,不再重试
func (d *Downloader) ShouldRetry(node *models.CrawlNode, resp *Response, err error) bool {
	if node.RetryTimes >= d.opts.RetryTimes {
		return false
	}
	if err != nil {
		return transientError(err)
	}
	return resp != nil && d.retryable[resp.StatusCode]
}

// transientError 网络中断、超时、连接被拒等可重试错误
func transientError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, ErrNoResponse):
		return true
	}

	// url.Error 本身实现了net.Error,要看它包装的底层错误
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Wait 等待colly内部的异步任务结束
func (d *Downloader) Wait() {
	d.collector.Wait()
}

// cookieHeader 按名称排序拼接Cookie头
func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// decompressResponse 按Content-Encoding解压响应体
// colly已自动解压的gzip内容原样返回
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
