package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CookieSource Cookie来源标识
const CookieSource = "wangxiao.cn"

// CookieBundle 登录成功后保存的Cookie文件
// 写入后不再修改,一次成功获取对应两个文件(归档 + latest)
type CookieBundle struct {
	Cookies  map[string]string `json:"cookies"`  // name -> value
	Metadata CookieMetadata    `json:"metadata"` // 获取信息
}

// CookieMetadata Cookie元数据
type CookieMetadata struct {
	FetchedAt string `json:"fetched_at"` // ISO-8601
	Source    string `json:"source"`     // 来源站点
	Count     int    `json:"count"`      // Cookie数量
	Username  string `json:"username"`   // 登录账号
}

// NewCookieBundle 根据浏览器Cookie创建CookieBundle
func NewCookieBundle(cookies map[string]string, username string, fetchedAt time.Time) *CookieBundle {
	copied := make(map[string]string, len(cookies))
	for name, value := range cookies {
		copied[name] = value
	}

	return &CookieBundle{
		Cookies: copied,
		Metadata: CookieMetadata{
			FetchedAt: fetchedAt.Format("2006-01-02T15:04:05.000000"),
			Source:    CookieSource,
			Count:     len(copied),
			Username:  username,
		},
	}
}

// CookieArchiveFilename 生成归档Cookie文件名
func CookieArchiveFilename(t time.Time) string {
	return fmt.Sprintf("cookies_%s.json", t.Format("20060102_150405"))
}

// CookieLatestFilename 最新Cookie文件名
const CookieLatestFilename = "cookies_latest.json"

// ToJSON 序列化为JSON (缩进2个空格)
func (b *CookieBundle) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// SaveToFile 保存到文件
func (b *CookieBundle) SaveToFile(path string) error {
	data, err := b.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadCookieBundle 从文件加载Cookie
func LoadCookieBundle(path string) (*CookieBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bundle CookieBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("解析Cookie文件失败 [%s]: %w", path, err)
	}
	if bundle.Cookies == nil {
		bundle.Cookies = make(map[string]string)
	}

	return &bundle, nil
}
