package crawlers

import (
	"context"
	"testing"
	"time"
)

func TestAutoThrottle_Observe(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		status  int
		want    time.Duration
	}{
		// 起始1s, 目标并发2: 目标延迟 = 耗时/2
		{"慢响应增大延迟", 6 * time.Second, 200, 3 * time.Second},
		{"快响应减小延迟", 200 * time.Millisecond, 200, 550 * time.Millisecond},
		{"不低于最小延迟", 0, 200, 500 * time.Millisecond},
		{"不超过最大延迟", 10 * time.Minute, 200, 60 * time.Second},
		{"错误响应不减小延迟", 0, 503, time.Second},
		{"错误响应可以增大延迟", 4 * time.Second, 503, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewAutoThrottle(time.Second, 500*time.Millisecond, 60*time.Second, 2.0)
			th.Observe("ks.wangxiao.cn", tt.latency, tt.status)
			if got := th.Delay("ks.wangxiao.cn"); got != tt.want {
				t.Errorf("期望 %v, 实际 %v", tt.want, got)
			}
		})
	}
}

func TestAutoThrottle_DomainsIndependent(t *testing.T) {
	th := NewAutoThrottle(time.Second, 0, time.Minute, 1.0)
	th.Observe("a.example.com", 10*time.Second, 200)

	if th.Delay("b.example.com") != time.Second {
		t.Errorf("其它域名应保持起始延迟, 实际 %v", th.Delay("b.example.com"))
	}
}

func TestAutoThrottle_WaitWithoutDelay(t *testing.T) {
	th := NewAutoThrottle(0, 0, time.Second, 2.0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := th.Wait(ctx, "ks.wangxiao.cn"); err != nil {
			t.Fatalf("零延迟不应阻塞: %v", err)
		}
	}
}
