package export

import (
	"regexp"
	"strings"
)

var (
	answerWithParagraph = regexp.MustCompile(`^([A-Z0-9]+)<p>`)
	answerPrefix        = regexp.MustCompile(`^([A-Z0-9]+)`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
	digitsOnly          = regexp.MustCompile(`^[0-9]+$`)
)

var paragraphReplacer = strings.NewReplacer("<p>", "", "</p>", "")

// CleanContent 去掉除img外的所有标签,连续空白压成一个空格
func CleanContent(html string) string {
	if html == "" {
		return ""
	}
	text := stripTagsExceptImg(paragraphReplacer.Replace(html))
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// CleanAnalysis 去掉开头的答案,再去掉除img外的标签
func CleanAnalysis(analysis string) string {
	if analysis == "" {
		return ""
	}
	if loc := answerWithParagraph.FindStringIndex(analysis); loc != nil {
		analysis = analysis[loc[1]:]
	}
	return strings.TrimSpace(stripTagsExceptImg(paragraphReplacer.Replace(analysis)))
}

// ExtractAnswer 取解析开头的答案字母或数字,判断题 1/0 转为 正确/错误
func ExtractAnswer(analysis string) string {
	if analysis == "" {
		return ""
	}
	m := answerWithParagraph.FindStringSubmatch(analysis)
	if m == nil {
		m = answerPrefix.FindStringSubmatch(analysis)
	}
	if m == nil {
		return ""
	}

	switch m[1] {
	case "1":
		return "正确"
	case "0":
		return "错误"
	}
	return m[1]
}

// ProcessAnswer Markdown展示用的答案,返回展示文本和去掉答案后的解析
func ProcessAnswer(analysis string) (string, string) {
	m := answerPrefix.FindStringSubmatch(analysis)
	if m == nil {
		return "", analysis
	}
	answer := m[1]

	var display string
	switch {
	case answer == "1":
		display = "✅ 正确"
	case answer == "0":
		display = "❌ 错误"
	case digitsOnly.MatchString(answer):
		display = "答案: " + answer
	case len(answer) == 1:
		display = "正确答案: " + answer
	default:
		display = "正确答案: " + strings.Join(strings.Split(answer, ""), ", ")
	}

	rest := strings.TrimPrefix(analysis[len(answer):], "<p>")
	return display, rest
}

// stripTagsExceptImg 保留完整的<img ...>标签,其它标签连同尖括号去掉
// 没有闭合的 '<' 单独丢弃
func stripTagsExceptImg(html string) string {
	var sb strings.Builder
	sb.Grow(len(html))

	for i := 0; i < len(html); {
		if html[i] != '<' {
			sb.WriteByte(html[i])
			i++
			continue
		}

		end := strings.IndexByte(html[i:], '>')
		if end == -1 {
			i++
			continue
		}
		end += i
		if strings.HasPrefix(strings.ToLower(html[i:end+1]), "<img") {
			sb.WriteString(html[i : end+1])
		}
		i = end + 1
	}
	return sb.String()
}
