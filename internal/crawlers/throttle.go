package crawlers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AutoThrottle 按域名自适应调整请求间隔
// 目标: 每个域名同时在途的请求数接近 targetConcurrency
// 延迟 = (旧延迟 + 响应耗时/目标并发) / 2,限制在[minDelay, maxDelay];
// 非200响应不会降低延迟
type AutoThrottle struct {
	mu sync.Mutex

	startDelay time.Duration
	minDelay   time.Duration
	maxDelay   time.Duration
	target     float64

	domains map[string]*domainThrottle
}

type domainThrottle struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// NewAutoThrottle 创建自适应限速器
func NewAutoThrottle(startDelay, minDelay, maxDelay time.Duration, target float64) *AutoThrottle {
	if target <= 0 {
		target = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if startDelay < minDelay {
		startDelay = minDelay
	}
	return &AutoThrottle{
		startDelay: startDelay,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		target:     target,
		domains:    make(map[string]*domainThrottle),
	}
}

// domain 获取或创建域名状态,调用方持有锁
func (t *AutoThrottle) domain(host string) *domainThrottle {
	d, ok := t.domains[host]
	if !ok {
		d = &domainThrottle{
			limiter: rate.NewLimiter(limitFor(t.startDelay), 1),
			delay:   t.startDelay,
		}
		t.domains[host] = d
	}
	return d
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

// Wait 等待直到该域名允许发出下一个请求
func (t *AutoThrottle) Wait(ctx context.Context, host string) error {
	t.mu.Lock()
	limiter := t.domain(host).limiter
	t.mu.Unlock()
	return limiter.Wait(ctx)
}

// Observe 根据响应耗时和状态码更新延迟
func (t *AutoThrottle) Observe(host string, latency time.Duration, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.domain(host)
	old := d.delay

	targetDelay := time.Duration(float64(latency) / t.target)
	next := (old + targetDelay) / 2
	if next < targetDelay {
		next = targetDelay
	}
	if next < t.minDelay {
		next = t.minDelay
	}
	if next > t.maxDelay {
		next = t.maxDelay
	}

	// 错误响应通常很快返回,不能据此加速
	if status != 200 && next <= old {
		return
	}

	d.delay = next
	d.limiter.SetLimit(limitFor(next))
}

// Delay 当前域名延迟
func (t *AutoThrottle) Delay(host string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.domain(host).delay
}
