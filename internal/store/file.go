package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// maxLineSize 单条记录上限
const maxLineSize = 16 * 1024 * 1024

// FileList JSON Lines文件,单进程内存队列模式下代替Redis列表
type FileList struct {
	path string
	mu   sync.Mutex
}

// NewFileList 创建文件列表
func NewFileList(path string) *FileList {
	return &FileList{path: path}
}

// Path 文件路径
func (l *FileList) Path() string {
	return l.path
}

// Append 每条记录写一行
func (l *FileList) Append(_ context.Context, records ...*models.QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开记录文件失败: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range records {
		data, err := r.ToJSON()
		if err != nil {
			return fmt.Errorf("序列化题目失败: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Len 行数,文件不存在时为0
func (l *FileList) Len(ctx context.Context) (int64, error) {
	var n int64
	err := l.scan(func(int64, string) bool {
		n++
		return true
	})
	return n, err
}

// Range 读取 [start, stop] 行
func (l *FileList) Range(ctx context.Context, start, stop int64) ([]string, error) {
	var out []string
	err := l.scan(func(i int64, line string) bool {
		if i > stop {
			return false
		}
		if i >= start {
			out = append(out, line)
		}
		return true
	})
	return out, err
}

// scan 逐行回调非空行,fn返回false时停止
func (l *FileList) scan(fn func(index int64, line string) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("打开记录文件失败: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var i int64
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !fn(i, line) {
			return nil
		}
		i++
	}
	return scanner.Err()
}
