package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// Pressure 内存压力等级
type Pressure int

const (
	PressureNormal    Pressure = iota
	PressureWarning            // 可用 < 500MB,只记录
	PressureCritical           // 可用 < 300MB,worker减半
	PressureEmergency          // 可用 < 200MB,只保留1个worker
)

func (p Pressure) String() string {
	switch p {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	case PressureEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

func pressureOf(availableMB int64) Pressure {
	switch {
	case availableMB < 200:
		return PressureEmergency
	case availableMB < 300:
		return PressureCritical
	case availableMB < 500:
		return PressureWarning
	default:
		return PressureNormal
	}
}

// ResourceMonitorConfig 资源监控器配置,内存单位均为字节
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 为系统保留的内存
	SafetyThreshold     int64 // 低于该余量时拒绝启动浏览器
	CPULoadThreshold    int   // CPU负载阈值(%),>=200 关闭CPU检查
	MaxWorkersLimit     int   // worker数量上限
	WorkerMemoryUsage   int64 // 单个worker估算内存
}

// MemoryStatus 最近一次采样的资源状态
type MemoryStatus struct {
	TotalMemory     uint64
	AllocatedMemory uint64
	AvailableMemory int64
	CPUPercent      float64
	Pressure        Pressure
}

type resourceSample struct {
	alloc uint64
	cpu   float64
}

// ResourceMonitor 系统资源监控器
// 抓取时限制活跃worker数量,登录时在启动浏览器前检查余量
type ResourceMonitor struct {
	config      ResourceMonitorConfig
	totalMemory uint64

	mu     sync.RWMutex
	last   resourceSample
	cancel context.CancelFunc
	done   chan struct{}
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 32 * mb
	}
	if config.MaxWorkersLimit <= 0 {
		config.MaxWorkersLimit = 16
	}

	total := uint64(4 << 30)
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,按4GB估算")
	} else {
		total = vm.Total
	}
	log.Debug().Msgf("系统总内存: %.2f GB", float64(total)/(1<<30))

	return &ResourceMonitor{
		config:      config,
		totalMemory: total,
		last:        resourceSample{alloc: heapAlloc()},
	}
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc
}

// StartMonitoring 启动后台采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	rm.done = make(chan struct{})
	go rm.loop(ctx, interval, rm.done)
}

func (rm *ResourceMonitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.sample()
		}
	}
}

func (rm *ResourceMonitor) sample() {
	s := resourceSample{alloc: heapAlloc()}
	// 100ms窗口内所有核心的平均使用率
	pct, err := cpu.Percent(100*time.Millisecond, false)
	switch {
	case err != nil:
		log.Debug().Err(err).Msg("获取CPU使用率失败")
	case len(pct) > 0:
		s.cpu = pct[0]
	}

	rm.mu.Lock()
	rm.last = s
	rm.mu.Unlock()
}

// StopMonitoring 停止采样并等待后台goroutine退出
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	cancel, done := rm.cancel, rm.done
	rm.cancel, rm.done = nil, nil
	rm.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (rm *ResourceMonitor) snapshot() (resourceSample, int64) {
	rm.mu.RLock()
	s := rm.last
	rm.mu.RUnlock()
	return s, int64(rm.totalMemory) - int64(s.alloc) - rm.config.SafetyReserveMemory
}

// MaxWorkers 按内存余量和CPU核数估算worker上限
func (rm *ResourceMonitor) MaxWorkers() int {
	_, available := rm.snapshot()

	n := 1
	if surplus := available - rm.config.SafetyThreshold; surplus > 0 {
		n = int(surplus / rm.config.WorkerMemoryUsage)
	}
	// worker以网络IO为主,允许CPU核数的4倍
	if byCPU := runtime.NumCPU() * 4; byCPU < n {
		n = byCPU
	}
	if rm.config.MaxWorkersLimit < n {
		n = rm.config.MaxWorkersLimit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CheckAvailability 检查是否有余量启动浏览器,不允许时返回原因
func (rm *ResourceMonitor) CheckAvailability() (bool, string) {
	s, available := rm.snapshot()
	if available < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(可用%dMB)", available/mb)
	}
	if rm.config.CPULoadThreshold < 200 && s.cpu > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", s.cpu)
	}
	return true, ""
}

// Status 最近一次采样的资源状态
func (rm *ResourceMonitor) Status() MemoryStatus {
	s, available := rm.snapshot()
	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: s.alloc,
		AvailableMemory: available,
		CPUPercent:      s.cpu,
		Pressure:        pressureOf(available / mb),
	}
}

// WorkerTarget 当前内存压力下允许的活跃worker数
func (rm *ResourceMonitor) WorkerTarget(limit int) int {
	switch rm.Status().Pressure {
	case PressureEmergency:
		return 1
	case PressureCritical:
		if limit/2 < 1 {
			return 1
		}
		return limit / 2
	default:
		return limit
	}
}
