package models

import "fmt"

// ConfigError 配置或定位文件错误
// FilePath 为空表示来自默认值或环境变量
type ConfigError struct {
	FilePath string
	Field    string
	Cause    error
}

func (e *ConfigError) Error() string {
	where := e.FilePath
	if where == "" {
		where = "默认值/环境变量"
	}
	if e.Field == "" {
		return fmt.Sprintf("配置错误 (%s): %v", where, e.Cause)
	}
	return fmt.Sprintf("配置错误 (%s) %s: %v", where, e.Field, e.Cause)
}

// Unwrap 支持errors.Is/As
func (e *ConfigError) Unwrap() error { return e.Cause }
