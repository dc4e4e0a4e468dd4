package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func newTestMarkdownSink(t *testing.T) *MarkdownSink {
	t.Helper()
	sink, err := NewMarkdownSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sink.now = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local) }
	return sink
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"第二节征税范围/纳税人", "第二节征税范围_纳税人"},
		{`a\b`, "a_b"},
		{`三、税目:税额?`, "三、税目税额"},
		{`<考点>"一"|*`, "考点一"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, 期望 %q", tt.in, got, tt.want)
		}
	}
}

func TestMarkdownSink_FilePath(t *testing.T) {
	sink := newTestMarkdownSink(t)

	t.Run("目录为路径除最后一级", func(t *testing.T) {
		got := sink.FilePath(models.Lineage{"税务师", "税法二", "第二节征税范围/纳税人", "三、税目:税额"})
		want := filepath.Join(sink.baseDir, "税务师", "税法二", "第二节征税范围_纳税人", "三、税目税额.md")
		if got != want {
			t.Errorf("FilePath = %s, 期望 %s", got, want)
		}
	})

	t.Run("文件名截断到50个字符", func(t *testing.T) {
		long := strings.Repeat("长", 60)
		got := filepath.Base(sink.FilePath(models.Lineage{"a", "b", long}))
		if got != strings.Repeat("长", 50)+".md" {
			t.Errorf("文件名 = %s", got)
		}
	})
}

func TestMarkdownHeader(t *testing.T) {
	got := MarkdownHeader(models.Lineage{"税务师", "税法二", "第六章", "第二节"})
	if !strings.HasPrefix(got, "# 📚 税法二 -> 第六章 -> 第二节\n") {
		t.Errorf("标题 = %q", got)
	}
	if !strings.Contains(got, "> 分类: 税务师 -> 税法二 -> 第六章 -> 第二节") {
		t.Errorf("分类 = %q", got)
	}
}

func TestMarkdownSink_Write(t *testing.T) {
	sink := newTestMarkdownSink(t)
	ctx := context.Background()
	path := models.Lineage{"税务师", "税法二", "第六章车船税", "三、税目税额"}

	first := &models.QuestionRecord{
		Path:         path,
		Content:      "<p>有关车船税的计税依据,下列表述正确的有</p>",
		Options:      []string{"A、车辆整备质量", "B、挂车按50%计征"},
		TextAnalysis: "B<p>挂车按照货车税额的50%计算</p>",
	}
	second := &models.QuestionRecord{
		Path:         path,
		Content:      "<p>另一道题</p>",
		Options:      []string{"A、甲", "B、乙"},
		TextAnalysis: "AB<p>多选解析</p>",
	}
	short := &models.QuestionRecord{Path: models.Lineage{"a", "b"}, Content: "x", TextAnalysis: "A"}

	result, err := sink.Write(ctx, []*models.QuestionRecord{first, second, first, short})
	if err != nil {
		t.Fatal(err)
	}
	if result.Written != 2 || result.Skipped != 2 {
		t.Errorf("result = %+v, 期望写入2跳过2", result)
	}

	data, err := os.ReadFile(sink.FilePath(path))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)

	t.Run("文件头只写一次", func(t *testing.T) {
		if n := strings.Count(text, "# 📚 "); n != 1 {
			t.Errorf("文件头出现 %d 次", n)
		}
		if !strings.Contains(text, "*题目保存时间: 2025-03-14 09:26:53*") {
			t.Error("缺少保存时间")
		}
	})

	t.Run("题目内容", func(t *testing.T) {
		for _, want := range []string{"有关车船税的计税依据", "- A、车辆整备质量", "**正确答案: B**", "挂车按照货车税额", "**正确答案: A, B**"} {
			if !strings.Contains(text, want) {
				t.Errorf("缺少 %q\n%s", want, text)
			}
		}
		if n := strings.Count(text, "有关车船税的计税依据"); n != 1 {
			t.Errorf("重复题目出现 %d 次", n)
		}
	})

	t.Run("再次写入同一题被跳过", func(t *testing.T) {
		result, err := sink.Write(ctx, []*models.QuestionRecord{first})
		if err != nil {
			t.Fatal(err)
		}
		if result.Written != 0 || result.Skipped != 1 {
			t.Errorf("result = %+v", result)
		}
	})
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "x", "y"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "x", "keep.md"), []byte("#"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := PruneEmptyDirs(root); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Error("空目录 a 应被删除")
	}
	if _, err := os.Stat(filepath.Join(root, "x", "y")); !os.IsNotExist(err) {
		t.Error("空目录 x/y 应被删除")
	}
	if _, err := os.Stat(filepath.Join(root, "x", "keep.md")); err != nil {
		t.Error("非空目录应保留")
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("根目录应保留")
	}
}
