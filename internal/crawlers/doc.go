// Package crawlers 提供登录浏览器会话和题库抓取的下载、调度组件
//
// # 概述
//
// crawlers包不关心页面结构,只负责把请求发出去、把节点排好队。
// 页面解析在 spider 包,登录流程在 login 包。
//
// # 核心组件
//
// ## BrowserSession
//
// 基于go-rod的单页面浏览器会话,页面由stealth创建以隐藏自动化特征。
// 每次登录尝试新建一个会话,调用方负责 defer Close()。
//
//	session, err := OpenBrowser(ctx, BrowserOptions{Headless: true, PollInterval: 500 * time.Millisecond})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	if err := session.Navigate("https://ks.wangxiao.cn/"); err != nil {
//	    return err
//	}
//
// 元素等待按XPath轮询,元素必须存在且可见才算找到。
//
// ## Scheduler
//
// 抓取队列接口,两种实现:
//   - RedisScheduler: ZSET保存节点(score为-priority),SET保存指纹,LIST保存起始URL,多进程共享
//   - MemoryScheduler: 进程内堆,单进程运行和测试使用
//
// 节点指纹为 sha1(方法, 规范化URL, key有序的JSON请求体)。重试节点设置DontFilter跳过去重。
//
// ## Downloader
//
// 基于Colly的同步下载器。并发由LimitRule控制(全局+目标域名两条规则),
// 礼貌延迟在0.5~1.5倍之间随机。AutoThrottle根据响应头到达耗时按域名调整最小间隔。
// 响应按Content-Encoding解压(gzip/deflate/br)。
//
//	d, err := NewDownloader(DownloaderOptions{
//	    AllowedDomain: "ks.wangxiao.cn",
//	    Concurrency:   16,
//	    PerDomain:     8,
//	    Delay:         time.Second,
//	    RetryTimes:    5,
//	})
//	resp, err := d.Fetch(ctx, node)
//	if d.ShouldRetry(node, resp, err) {
//	    scheduler.Enqueue(ctx, node.Retry())
//	}
//
// ## ResourceMonitor
//
// 基于gopsutil监控系统内存和CPU。MaxWorkers给出启动时的worker上限,
// WorkerTarget按内存压力(normal/warning/critical/emergency)缩减活跃worker,
// CheckAvailability用于启动浏览器前的余量检查。
//
// # 线程安全
//
// Scheduler、Downloader、AutoThrottle、ResourceMonitor可被多个goroutine同时使用。
// BrowserSession只能在一个goroutine中使用。
package crawlers
