package login

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// CookieWriter 保存Cookie文件
// 每次保存写一个归档文件和覆盖 cookies_latest.json
type CookieWriter struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewCookieWriter 创建Cookie写入器
func NewCookieWriter(dir string) *CookieWriter {
	return &CookieWriter{dir: dir, now: time.Now}
}

// LatestPath cookies_latest.json 路径
func (w *CookieWriter) LatestPath() string {
	return filepath.Join(w.dir, models.CookieLatestFilename)
}

// Persist 写入归档文件和latest文件,返回归档文件路径
// 同一秒内多次写入时归档文件名追加 _1, _2 ...
func (w *CookieWriter) Persist(bundle *models.CookieBundle) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("创建Cookie目录失败: %w", err)
	}

	data, err := bundle.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化Cookie失败: %w", err)
	}

	archive := w.archivePath(w.now())
	if err := os.WriteFile(archive, data, 0644); err != nil {
		return "", fmt.Errorf("写入归档Cookie失败: %w", err)
	}

	// 先写临时文件再改名,读取方不会看到写了一半的latest
	tmp := w.LatestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("写入latest Cookie失败: %w", err)
	}
	if err := os.Rename(tmp, w.LatestPath()); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("替换latest Cookie失败: %w", err)
	}

	return archive, nil
}

// archivePath 选择一个不存在的归档文件名
func (w *CookieWriter) archivePath(t time.Time) string {
	name := models.CookieArchiveFilename(t)
	path := filepath.Join(w.dir, name)
	base := strings.TrimSuffix(name, ".json")

	for i := 1; fileExists(path); i++ {
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%d.json", base, i))
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
