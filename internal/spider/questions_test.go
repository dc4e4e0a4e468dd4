package spider

import (
	"strings"
	"testing"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func leafNode(path ...string) *models.CrawlNode {
	return &models.CrawlNode{
		URL:      DefaultPostURL,
		Method:   "POST",
		Priority: models.PriorityLeaf,
		Stage:    models.StageJSONPayload,
		Meta:     models.NodeMeta{Path: path},
	}
}

const mixedPayload = `{"Data":[{
  "questions":[{
    "content":"<p>题干</p>",
    "options":[
      {"name":"A","content":"甲","isRight":0},
      {"name":"B","content":"乙","isRight":1}
    ],
    "textAnalysis":"<p>解析</p>"
  }],
  "materials":[{
    "material":{"content":"<p>材料</p>"},
    "questions":[{
      "content":"<p>子题</p>",
      "options":[
        {"name":"A","content":"x","isRight":true},
        {"name":"B","content":"y","isRight":false},
        {"name":"C","content":"z","isRight":true}
      ],
      "textAnalysis":"分析"
    }]
  }]
}]}`

func TestParseQuestions_Flatten(t *testing.T) {
	e := newTestExtractor()
	node := leafNode("一级建造师", "建筑实务", "第一章", "考点一")

	records, skipped, err := e.ParseQuestions(node, []byte(mixedPayload))
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 0 {
		t.Errorf("不应跳过: %v", skipped)
	}
	if len(records) != 2 {
		t.Fatalf("记录数 = %d, 期望 2", len(records))
	}

	t.Run("普通题", func(t *testing.T) {
		r := records[0]
		if r.Content != "<p>题干</p>" {
			t.Errorf("content = %s", r.Content)
		}
		if strings.Join(r.Options, "|") != "A、甲|B、乙" {
			t.Errorf("options = %v", r.Options)
		}
		if r.TextAnalysis != "B<p>解析</p>" {
			t.Errorf("textAnalysis = %s", r.TextAnalysis)
		}
	})

	t.Run("材料题", func(t *testing.T) {
		r := records[1]
		if r.Content != "<p>材料</p>\n<p>子题</p>" {
			t.Errorf("content = %q", r.Content)
		}
		if r.TextAnalysis != "AC分析" {
			t.Errorf("textAnalysis = %s", r.TextAnalysis)
		}
		if len(r.Options) != 3 {
			t.Errorf("options = %v", r.Options)
		}
	})

	t.Run("路径与请求一致", func(t *testing.T) {
		for _, r := range records {
			if strings.Join(r.Path, "|") != strings.Join(node.Meta.Path, "|") {
				t.Errorf("path = %v", r.Path)
			}
		}
		// 记录的路径是独立副本
		records[0].Path[0] = "改动"
		if node.Meta.Path[0] != "一级建造师" {
			t.Error("修改记录路径影响了请求节点")
		}
	})
}

func TestParseQuestions_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantRecords int
		wantSkipped int
	}{
		{
			name:        "子题是标量",
			payload:     `{"Data":[{"materials":[{"material":{"content":"材料"},"questions":5}]}]}`,
			wantSkipped: 1,
		},
		{
			name:        "子题是字符串",
			payload:     `{"Data":[{"materials":[{"material":{"content":"材料"},"questions":"abc"}]}]}`,
			wantSkipped: 1,
		},
		{
			name:        "子题元素不是对象",
			payload:     `{"Data":[{"materials":[{"material":{"content":"材料"},"questions":[1,2]}]}]}`,
			wantSkipped: 1,
		},
		{
			name: "异常材料不影响其它题",
			payload: `{"Data":[{
				"questions":[{"content":"q","options":[{"name":"A","content":"a","isRight":1}],"textAnalysis":"t"}],
				"materials":[{"material":{"content":"m"},"questions":{"bad":true}}]
			}]}`,
			wantRecords: 1,
			wantSkipped: 1,
		},
		{
			name:        "材料没有子题",
			payload:     `{"Data":[{"materials":[{"material":{"content":"材料"}}]}]}`,
			wantSkipped: 1,
		},
		{
			name:        "questions不是数组",
			payload:     `{"Data":[{"questions":{"content":"q"}}]}`,
			wantSkipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor()
			records, skipped, err := e.ParseQuestions(leafNode("a", "b", "c"), []byte(tt.payload))
			if err != nil {
				t.Fatalf("结构异常不应返回错误: %v", err)
			}
			if len(records) != tt.wantRecords {
				t.Errorf("记录数 = %d, 期望 %d", len(records), tt.wantRecords)
			}
			if len(skipped) != tt.wantSkipped {
				t.Errorf("跳过数 = %d, 期望 %d (%v)", len(skipped), tt.wantSkipped, skipped)
			}
		})
	}
}

func TestParseQuestions_NoData(t *testing.T) {
	payloads := map[string]string{
		"Data为null": `{"Data":null}`,
		"没有Data":     `{"Msg":"未登录"}`,
		"Data为空数组":   `{"Data":[]}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			e := newTestExtractor()
			records, skipped, err := e.ParseQuestions(leafNode("a", "b", "c"), []byte(payload))
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 0 || len(skipped) != 0 {
				t.Errorf("records=%d skipped=%d", len(records), len(skipped))
			}
		})
	}
}

func TestParseQuestions_InvalidJSON(t *testing.T) {
	e := newTestExtractor()
	if _, _, err := e.ParseQuestions(leafNode("a", "b", "c"), []byte("<html>登录</html>")); err == nil {
		t.Error("非JSON响应应返回错误")
	}
}

func TestDecodeItem(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind ItemKind
	}{
		{"普通题", `{"content":"q","options":[]}`, ItemPlain},
		{"空material视为普通题", `{"content":"q","material":{}}`, ItemPlain},
		{"material为null视为普通题", `{"content":"q","material":null}`, ItemPlain},
		{"材料题", `{"material":{"content":"m"},"questions":[{"content":"s"}]}`, ItemMaterial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := DecodeItem([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if item.Kind != tt.kind {
				t.Errorf("kind = %d, 期望 %d", item.Kind, tt.kind)
			}
		})
	}
}

func TestBuildRecord(t *testing.T) {
	q := Question{
		Content: "题干",
		Options: []Option{
			{Name: "A", Content: "", IsRight: float64(1)},
			{Name: "B", Content: "乙", IsRight: "1"},
			{Name: "C", Content: "丙", IsRight: true},
		},
	}

	r := buildRecord(models.Lineage{"a", "b", "c"}, q.Content, q)
	t.Run("空内容选项不输出但仍计入答案", func(t *testing.T) {
		if strings.Join(r.Options, "|") != "B、乙|C、丙" {
			t.Errorf("options = %v", r.Options)
		}
	})
	t.Run("没有解析时不拼答案", func(t *testing.T) {
		if r.TextAnalysis != "" {
			t.Errorf("textAnalysis = %s", r.TextAnalysis)
		}
		if r.Valid() {
			t.Error("没有解析的记录应无效")
		}
	})

	q.TextAnalysis = "解析"
	r = buildRecord(models.Lineage{"a", "b", "c"}, q.Content, q)
	if r.TextAnalysis != "AC解析" {
		t.Errorf("textAnalysis = %s, 期望 AC解析", r.TextAnalysis)
	}
}
