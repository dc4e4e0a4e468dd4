package models

import "encoding/json"

// QuestionRecord 扁平化后的一道题
// 追加到记录列表后不再修改
type QuestionRecord struct {
	Path         Lineage  `json:"path"`
	Content      string   `json:"content"`
	Options      []string `json:"options"`
	TextAnalysis string   `json:"textAnalysis"`
}

// Valid 有效性过滤: 题干、解析、路径任一为空即无效
// 所有下游消费者在读取时都必须调用
func (r *QuestionRecord) Valid() bool {
	if r.Content == "" || r.TextAnalysis == "" {
		return false
	}
	return len(r.Path) > 0
}

// ToJSON 序列化为JSON
func (r *QuestionRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeQuestionRecord 从JSON反序列化题目
func DecodeQuestionRecord(data []byte) (*QuestionRecord, error) {
	var r QuestionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FeedRow 新闻列表类数据的一行
type FeedRow struct {
	Title    string `json:"title"`
	TitleURL string `json:"title_url"`
	Time     string `json:"time"`
}

// Valid 标题和链接不能为空
func (f *FeedRow) Valid() bool {
	return f.Title != "" && f.TitleURL != ""
}

// CSVRecord 转为CSV行
func (f *FeedRow) CSVRecord() []string {
	return []string{f.Title, f.TitleURL, f.Time}
}

// FeedCSVHeader CSV表头
var FeedCSVHeader = []string{"title", "title_url", "time"}
