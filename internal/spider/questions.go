package spider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// ItemKind 题目条目类型
type ItemKind int

const (
	// ItemPlain 普通题(单选、多选、判断等)
	ItemPlain ItemKind = iota
	// ItemMaterial 材料题,一段材料带若干子题
	ItemMaterial
)

// Option 选项
type Option struct {
	Name    string      `json:"name"`
	Content string      `json:"content"`
	IsRight interface{} `json:"isRight"`
}

// correct isRight 为 1 或 true
func (o Option) correct() bool {
	switch v := o.IsRight.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	}
	return false
}

// Question 一道题
type Question struct {
	Content      string   `json:"content"`
	Options      []Option `json:"options"`
	TextAnalysis string   `json:"textAnalysis"`
}

// Material 材料题
type Material struct {
	Passage   string
	Questions []Question
}

// Item 接口返回的一个条目,解析时按结构确定类型
type Item struct {
	Kind     ItemKind
	Plain    *Question
	Material *Material
}

// Outcome 单个条目的扁平化结果: 要么产出记录,要么带原因跳过
type Outcome struct {
	Records []*models.QuestionRecord
	Skip    string
}

// Skipped 条目是否被丢弃
func (o Outcome) Skipped() bool {
	return o.Skip != ""
}

func skip(format string, args ...interface{}) Outcome {
	return Outcome{Skip: fmt.Sprintf(format, args...)}
}

// ParseQuestions 题目接口JSON: Data 下每个元素的 questions 和 materials 合并后逐条扁平化
// Data 为空不算错误;结构异常的条目跳过并返回原因
func (e *Extractor) ParseQuestions(node *models.CrawlNode, body []byte) ([]*models.QuestionRecord, []string, error) {
	title := strings.Join(node.Meta.Path, "")

	var payload struct {
		Data json.RawMessage `json:"Data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("解析题目JSON失败: %w", err)
	}

	if !truthy(payload.Data) {
		e.log.Info().Str("url", node.URL).Msgf("题目《%s》没有数据", title)
		return nil, nil, nil
	}

	e.log.Info().Msgf("开始解析题目《%s》", title)

	raws, skipped := collectItems(payload.Data)

	var records []*models.QuestionRecord
	for _, raw := range raws {
		item, err := DecodeItem(raw)
		if err != nil {
			skipped = append(skipped, err.Error())
			continue
		}

		outcome := item.Flatten(node.Meta.Path)
		if outcome.Skipped() {
			skipped = append(skipped, outcome.Skip)
			continue
		}
		records = append(records, outcome.Records...)
	}

	for _, reason := range skipped {
		e.log.Debug().Str("reason", reason).Msgf("题目《%s》跳过条目", title)
	}
	e.log.Info().Int("records", len(records)).Int("skipped", len(skipped)).Msgf("题目《%s》解析完成", title)
	return records, skipped, nil
}

// collectItems 把 Data[*].questions 和 Data[*].materials 展平成一个列表
func collectItems(data json.RawMessage) ([]json.RawMessage, []string) {
	var groups []map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, []string{fmt.Sprintf("Data不是对象数组: %v", err)}
	}

	var (
		items   []json.RawMessage
		skipped []string
	)
	for i, group := range groups {
		for _, key := range []string{"questions", "materials"} {
			raw, ok := group[key]
			if !ok || !truthy(raw) {
				continue
			}
			var list []json.RawMessage
			if err := json.Unmarshal(raw, &list); err != nil {
				skipped = append(skipped, fmt.Sprintf("Data[%d].%s 不是数组", i, key))
				continue
			}
			items = append(items, list...)
		}
	}
	return items, skipped
}

// DecodeItem 按结构判断条目类型: 带非空 material 的是材料题,其余是普通题
func DecodeItem(raw json.RawMessage) (Item, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, fmt.Errorf("条目不是对象: %w", err)
	}

	if m, ok := fields["material"]; ok && truthy(m) {
		material, err := decodeMaterial(m, fields["questions"])
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: ItemMaterial, Material: material}, nil
	}

	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return Item{}, fmt.Errorf("题目结构异常: %w", err)
	}
	return Item{Kind: ItemPlain, Plain: &q}, nil
}

func decodeMaterial(material, questions json.RawMessage) (*Material, error) {
	var head struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(material, &head); err != nil {
		return nil, fmt.Errorf("材料结构异常: %w", err)
	}

	out := &Material{Passage: head.Content}
	if !truthy(questions) {
		return out, nil
	}
	if err := json.Unmarshal(questions, &out.Questions); err != nil {
		return nil, fmt.Errorf("材料子题结构异常: %w", err)
	}
	return out, nil
}

// Flatten 转为记录,path为完整分类路径
func (it Item) Flatten(path models.Lineage) Outcome {
	switch it.Kind {
	case ItemPlain:
		if it.Plain == nil {
			return skip("普通题为空")
		}
		return Outcome{Records: []*models.QuestionRecord{buildRecord(path, it.Plain.Content, *it.Plain)}}

	case ItemMaterial:
		if it.Material == nil {
			return skip("材料题为空")
		}
		if len(it.Material.Questions) == 0 {
			return skip("材料题没有子题")
		}
		records := make([]*models.QuestionRecord, 0, len(it.Material.Questions))
		for _, sub := range it.Material.Questions {
			records = append(records, buildRecord(path, joinPassage(it.Material.Passage, sub.Content), sub))
		}
		return Outcome{Records: records}
	}
	return skip("未知条目类型 %d", it.Kind)
}

// joinPassage 材料与子题题干用换行连接
func joinPassage(passage, content string) string {
	if passage != "" && content != "" {
		return passage + "\n" + content
	}
	return content
}

// buildRecord 选项格式化为 "字母、内容",正确选项字母拼在解析前面
func buildRecord(path models.Lineage, content string, q Question) *models.QuestionRecord {
	options := make([]string, 0, len(q.Options))
	var letters strings.Builder
	for _, o := range q.Options {
		if o.Name != "" && o.Content != "" {
			options = append(options, o.Name+"、"+o.Content)
		}
		if o.correct() {
			letters.WriteString(o.Name)
		}
	}

	analysis := ""
	if q.TextAnalysis != "" {
		analysis = letters.String() + q.TextAnalysis
	}

	return &models.QuestionRecord{
		Path:         path.Append(),
		Content:      content,
		Options:      options,
		TextAnalysis: analysis,
	}
}

var falsyJSON = [][]byte{
	[]byte("null"), []byte("false"), []byte("0"), []byte(`""`), []byte("[]"), []byte("{}"),
}

// truthy 空值、null、false、0、空字符串、空数组、空对象视为不存在
func truthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	compact := new(bytes.Buffer)
	if err := json.Compact(compact, trimmed); err == nil {
		trimmed = compact.Bytes()
	}
	for _, f := range falsyJSON {
		if bytes.Equal(trimmed, f) {
			return false
		}
	}
	return true
}
