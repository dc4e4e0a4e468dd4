package utils

import (
	"fmt"
	"time"
)

// FormatDuration 把等待时长格式化为"X分Y秒"或"X小时"
func FormatDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d小时", int(d/time.Hour))
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d分%d秒", secs/60, secs%60)
}
