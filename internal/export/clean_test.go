package export

import (
	"testing"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"空", "", ""},
		{"去掉段落", "<p>只有文字没有图片</p>", "只有文字没有图片"},
		{
			"保留图片",
			`<p>题目内容<img src="http://img.wangxiao.cn/a.png" alt="图片">更多内容</p>`,
			`题目内容<img src="http://img.wangxiao.cn/a.png" alt="图片">更多内容`,
		},
		{"图片在前", `<img src="http://img.wangxiao.cn/b.png"><p>图片在前</p>`, `<img src="http://img.wangxiao.cn/b.png">图片在前`},
		{"其它标签", "<div><span style=\"color:red\">红色</span>\n\n  <b>粗体</b></div>", "红色 粗体"},
		{"大写IMG", `<IMG SRC="x.png">`, `<IMG SRC="x.png">`},
		{"未闭合", "a < b", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanContent(tt.in); got != tt.want {
				t.Errorf("CleanContent(%q) = %q, 期望 %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"单选", "B<p>解析</p>", "B"},
		{"多选", "ACD<p>解析</p>", "ACD"},
		{"判断正确", "1<p>判断题解析</p>", "正确"},
		{"判断错误", "0<p>解析</p>", "错误"},
		{"没有段落", "A解析", "A"},
		{"其它数字", "23<p>x</p>", "23"},
		{"没有答案", "<p>解析</p>", ""},
		{"空", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractAnswer(tt.in); got != tt.want {
				t.Errorf("ExtractAnswer(%q) = %q, 期望 %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanAnalysis(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"去掉答案", "B<p>解析内容</p>", "解析内容"},
		{"保留图片", `B<p>解析<img src="x.png">更多</p>`, `解析<img src="x.png">更多`},
		{"没有段落时不去答案", "A纯文字", "A纯文字"},
		{"空", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanAnalysis(tt.in); got != tt.want {
				t.Errorf("CleanAnalysis(%q) = %q, 期望 %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProcessAnswer(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		display  string
		analysis string
	}{
		{"单选", "B<p>解析</p>", "正确答案: B", "解析</p>"},
		{"多选", "ABD<p>解析</p>", "正确答案: A, B, D", "解析</p>"},
		{"判断正确", "1<p>x</p>", "✅ 正确", "x</p>"},
		{"判断错误", "0<p>x</p>", "❌ 错误", "x</p>"},
		{"其它数字", "12<p>x</p>", "答案: 12", "x</p>"},
		{"没有答案", "<p>x</p>", "", "<p>x</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, rest := ProcessAnswer(tt.in)
			if display != tt.display || rest != tt.analysis {
				t.Errorf("ProcessAnswer(%q) = %q, %q; 期望 %q, %q", tt.in, display, rest, tt.display, tt.analysis)
			}
		})
	}
}

func TestToRow(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &models.QuestionRecord{
		Path:         models.Lineage{"税务师", "税法二", "第六章"},
		Content:      "<p>有关车船税的计税依据</p>",
		Options:      []string{"A、<b>甲</b>", "B、乙&丙"},
		TextAnalysis: "B<p>解析</p>",
	}

	row := ToRow(rec, now)
	if row.Path != "税务师->税法二->第六章" {
		t.Errorf("path = %s", row.Path)
	}
	if row.Content != "有关车船税的计税依据" {
		t.Errorf("content = %s", row.Content)
	}
	if row.Options != `["A、<b>甲</b>","B、乙&丙"]` {
		t.Errorf("options = %s", row.Options)
	}
	if row.Answer != "B" || row.Analysis != "解析" {
		t.Errorf("answer = %s, analysis = %s", row.Answer, row.Analysis)
	}
	if !row.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v", row.CreatedAt)
	}

	t.Run("没有选项", func(t *testing.T) {
		rec.Options = nil
		if got := ToRow(rec, now).Options; got != "[]" {
			t.Errorf("options = %s", got)
		}
	})
}
