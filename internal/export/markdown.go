package export

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
)

const (
	// minPathDepth 路径至少三级才导出
	minPathDepth = 3

	// maxFileNameRunes 文件名最长字符数
	maxFileNameRunes = 50

	// dedupPrefixRunes 按题干前100个字符去重
	dedupPrefixRunes = 100
)

var unsafeNameChars = regexp.MustCompile(`[<>:"|?*]`)

// MarkdownSink 按分类路径写Markdown文件
// 目录为路径除最后一级,文件名为最后一级
type MarkdownSink struct {
	baseDir   string
	converter *md.Converter
	now       func() time.Time
	mu        sync.Mutex
}

// NewMarkdownSink 创建Markdown导出
func NewMarkdownSink(baseDir string) (*MarkdownSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	return &MarkdownSink{
		baseDir:   baseDir,
		converter: md.NewConverter("", true, nil),
		now:       time.Now,
	}, nil
}

func (s *MarkdownSink) Name() string { return "md" }

// Write 逐条追加到对应文件
func (s *MarkdownSink) Write(ctx context.Context, batch []*models.QuestionRecord) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BatchResult
	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if len(rec.Path) < minPathDepth {
			utils.Warnf("路径太短: %v", rec.Path)
			result.Skipped++
			continue
		}

		written, err := s.writeRecord(rec)
		if err != nil {
			return result, err
		}
		if written {
			result.Written++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// FilePath 记录对应的Markdown文件
func (s *MarkdownSink) FilePath(path models.Lineage) string {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, s.baseDir)
	for _, p := range path[:len(path)-1] {
		parts = append(parts, SanitizeName(p))
	}

	name := path[len(path)-1]
	if r := []rune(name); len(r) > maxFileNameRunes {
		name = string(r[:maxFileNameRunes])
	}
	parts = append(parts, SanitizeName(name)+".md")
	return filepath.Join(parts...)
}

// writeRecord 内容已存在时返回false
func (s *MarkdownSink) writeRecord(rec *models.QuestionRecord) (bool, error) {
	path := s.FilePath(rec.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("创建目录失败: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("读取 %s 失败: %w", path, err)
	}

	content := s.toMarkdown(rec.Content)
	if key := prefixRunes(content, dedupPrefixRunes); key != "" && strings.Contains(string(existing), key) {
		return false, nil
	}

	var sb strings.Builder
	header := MarkdownHeader(rec.Path)
	if !strings.Contains(string(existing), header) {
		sb.WriteString(header)
		sb.WriteString(fmt.Sprintf("\n*题目保存时间: %s*\n\n---", s.now().Format("2006-01-02 15:04:05")))
	}
	sb.WriteString(s.formatQuestion(content, rec.Options, rec.TextAnalysis))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, fmt.Errorf("打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(sb.String()); err != nil {
		return false, fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return true, nil
}

// formatQuestion 题干、选项、答案、解析
func (s *MarkdownSink) formatQuestion(content string, options []string, analysis string) string {
	answer, rest := ProcessAnswer(analysis)

	var sb strings.Builder
	sb.WriteString("\n\n\n---\n\n")
	sb.WriteString(content)
	sb.WriteString("\n")

	if len(options) > 0 {
		sb.WriteString("\n")
		for _, o := range options {
			if o = strings.TrimSpace(o); o == "" {
				continue
			}
			sb.WriteString("- " + s.toMarkdown(o) + "\n")
		}
	}

	if answer != "" {
		sb.WriteString("\n**" + answer + "**\n")
	}
	if rest = s.toMarkdown(rest); rest != "" {
		sb.WriteString("\n" + rest + "\n")
	}
	return sb.String()
}

// toMarkdown HTML转Markdown,失败时退回去标签的文本
func (s *MarkdownSink) toMarkdown(html string) string {
	if html == "" {
		return ""
	}
	out, err := s.converter.ConvertString(html)
	if err != nil {
		utils.Debugf("HTML转Markdown失败: %v", err)
		return CleanContent(html)
	}
	return strings.TrimSpace(out)
}

// Close 删除空目录
func (s *MarkdownSink) Close() error {
	return PruneEmptyDirs(s.baseDir)
}

// MarkdownHeader 文件头: 最后三级作为标题,完整路径作为分类
func MarkdownHeader(path models.Lineage) string {
	title := path
	if len(path) >= 3 {
		title = path[len(path)-3:]
	}
	return fmt.Sprintf("# 📚 %s\n\n> 分类: %s\n\n---\n\n",
		strings.Join(title, " -> "), strings.Join(path, " -> "))
}

// SanitizeName 路径分隔符换成下划线,去掉文件系统不允许的字符
func SanitizeName(name string) string {
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	return unsafeNameChars.ReplaceAllString(name, "")
}

// PruneEmptyDirs 由深到浅删除root下的空目录,root本身保留
func PruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}
	return nil
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
