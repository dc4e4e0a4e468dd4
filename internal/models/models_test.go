package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"缺少主机名", "https:///path", true},
		{"有效的HTTPS URL", "https://ks.wangxiao.cn/", false},
		{"带路径的URL", "https://ks.wangxiao.cn/exampoint/list?sign=jz1", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuestionRecord_Valid(t *testing.T) {
	base := QuestionRecord{
		Path:         Lineage{"一级建造师", "建设工程经济", "第一章", "资金时间价值"},
		Content:      "<p>题干</p>",
		Options:      []string{"A、甲", "B、乙"},
		TextAnalysis: "A<p>解析</p>",
	}

	tests := []struct {
		name   string
		mutate func(r *QuestionRecord)
		want   bool
	}{
		{"完整记录保留", func(r *QuestionRecord) {}, true},
		{"题干为空丢弃", func(r *QuestionRecord) { r.Content = "" }, false},
		{"解析为空丢弃", func(r *QuestionRecord) { r.TextAnalysis = "" }, false},
		{"路径为空丢弃", func(r *QuestionRecord) { r.Path = nil }, false},
		{"无选项仍有效", func(r *QuestionRecord) { r.Options = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Path = append(Lineage(nil), base.Path...)
			tt.mutate(&r)
			if got := r.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuestionRecord_JSONFieldNames(t *testing.T) {
	r := QuestionRecord{
		Path:         Lineage{"a", "b", "c"},
		Content:      "c",
		Options:      []string{"A、x"},
		TextAnalysis: "A解析",
	}
	data, err := r.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("解析JSON失败: %v", err)
	}
	for _, key := range []string{"path", "content", "options", "textAnalysis"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("缺少字段 %s: %s", key, data)
		}
	}
}

func TestLineage_AppendDoesNotAlias(t *testing.T) {
	parent := make(Lineage, 0, 8)
	parent = append(parent, "一级", "二级")

	a := parent.Append("A")
	b := parent.Append("B")

	if a[2] != "A" || b[2] != "B" {
		t.Errorf("Append结果互相覆盖: a=%v b=%v", a, b)
	}
	if len(parent) != 2 {
		t.Errorf("原Lineage被修改: %v", parent)
	}
}

func TestCrawlNode_Validate(t *testing.T) {
	tests := []struct {
		name    string
		node    CrawlNode
		wantErr bool
	}{
		{"有效GET", CrawlNode{URL: "https://ks.wangxiao.cn/", Method: "GET", Stage: StageCategoryPage}, false},
		{"有效POST", CrawlNode{URL: "https://ks.wangxiao.cn/practice/listQuestions", Method: "POST", Stage: StageJSONPayload}, false},
		{"未知方法", CrawlNode{URL: "https://ks.wangxiao.cn/", Method: "PUT", Stage: StageCategoryPage}, true},
		{"未知阶段", CrawlNode{URL: "https://ks.wangxiao.cn/", Method: "GET", Stage: "foo"}, true},
		{"无效URL", CrawlNode{URL: "ks.wangxiao.cn", Method: "GET", Stage: StageCategoryPage}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlNode_Retry(t *testing.T) {
	n := NewGetNode("https://ks.wangxiao.cn/", StageCategoryPage, PriorityCategory, NodeMeta{})
	r := n.Retry().Retry()

	if r.RetryTimes != 2 {
		t.Errorf("RetryTimes = %d, want 2", r.RetryTimes)
	}
	if !r.DontFilter {
		t.Error("重试节点应跳过去重")
	}
	if n.RetryTimes != 0 || n.DontFilter {
		t.Error("原节点不应被修改")
	}
}

func TestCookieBundle_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	fetched := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	bundle := NewCookieBundle(map[string]string{"sid": "abc", "uid": "42"}, "tester", fetched)

	path := filepath.Join(dir, CookieArchiveFilename(fetched))
	if filepath.Base(path) != "cookies_20260102_030405.json" {
		t.Errorf("归档文件名 = %s", filepath.Base(path))
	}

	if err := bundle.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadCookieBundle(path)
	if err != nil {
		t.Fatalf("LoadCookieBundle() error = %v", err)
	}
	if loaded.Metadata.Count != 2 || loaded.Metadata.Source != CookieSource || loaded.Metadata.Username != "tester" {
		t.Errorf("元数据不一致: %+v", loaded.Metadata)
	}
	if loaded.Cookies["sid"] != "abc" {
		t.Errorf("Cookie不一致: %v", loaded.Cookies)
	}
	if loaded.Metadata.FetchedAt != "2026-01-02T03:04:05.000000" {
		t.Errorf("fetched_at = %s", loaded.Metadata.FetchedAt)
	}
}

func TestLoadCookieBundle_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := LoadCookieBundle(filepath.Join(dir, "missing.json")); err == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("JSON格式错误", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadCookieBundle(path); err == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("缺少cookies字段", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		if err := os.WriteFile(path, []byte(`{"metadata":{}}`), 0644); err != nil {
			t.Fatal(err)
		}
		b, err := LoadCookieBundle(path)
		if err != nil {
			t.Fatalf("LoadCookieBundle() error = %v", err)
		}
		if b.Cookies == nil {
			t.Error("Cookies应初始化为空map")
		}
	})
}

func TestCliHeaders_Parse(t *testing.T) {
	h, err := CliHeaders{"Referer: https://ks.wangxiao.cn/", "X-Test:  1 "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if h.Get("Referer") != "https://ks.wangxiao.cn/" || h.Get("X-Test") != "1" {
		t.Errorf("解析结果错误: %v", h)
	}

	if _, err := (CliHeaders{"no-colon"}).Parse(); err == nil {
		t.Error("缺少冒号应返回错误")
	}
	if _, err := (CliHeaders{": value"}).Parse(); err == nil {
		t.Error("空名称应返回错误")
	}
	if _, err := (CliHeaders{"content-type: text/plain"}).Parse(); err == nil {
		t.Error("Content-Type由节点设置,应返回错误")
	}

	multi, err := CliHeaders{"X-Tag: a", "x-tag: b"}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := multi.Values("X-Tag"); len(got) != 2 {
		t.Errorf("同名头部应保留两个值, 得到 %v", got)
	}
}
