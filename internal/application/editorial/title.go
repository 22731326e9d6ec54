package editorial

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headingMarker  = regexp.MustCompile(`^#+\s*`)
	strongMarker   = regexp.MustCompile(`\*\*|__`)
	chapterMarker  = regexp.MustCompile(`(?i)^(?:capitolo|chapter|parte|part|cap\.?|ch\.?|pt\.?)(?:\s*\d+|\s+[ivxlc]+)\b\s*[:\-–—.]?\s*`)
	numberedPrefix = regexp.MustCompile(`^\d+\.\s+`)
)

// CleanChapterTitle 去掉标题前的 Markdown 标记和一个结构性前缀（"Capitolo 3:"、"Chapter IV -"、"2. "）
// 不匹配的输入原样通过
func CleanChapterTitle(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}

	s = headingMarker.ReplaceAllString(s, "")
	s = strongMarker.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	for _, m := range []string{"*", "_"} {
		if len(s) > 2 && strings.HasPrefix(s, m) && strings.HasSuffix(s, m) {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}

	if loc := chapterMarker.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	} else if loc := numberedPrefix.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}

	return strings.TrimSpace(s)
}

// FormatChapterTitle 使用默认语言生成章节标题
func FormatChapterTitle(index int, raw string) string {
	return DefaultLocale.FormatChapterTitle(index, raw)
}

// FormatChapterTitle 生成 "{label} {index+1} – {title}"，序号只取决于导出顺序
func (l *Locale) FormatChapterTitle(index int, raw string) string {
	clean := l.CleanTitle(raw)
	if clean == "" {
		return fmt.Sprintf("%s %d", l.ChapterLabel, index+1)
	}
	return fmt.Sprintf("%s %d – %s", l.ChapterLabel, index+1, clean)
}

// CleanTitle 章节标题管线：去 emoji、规范化、去前缀、标题大小写（不加序号）
func (l *Locale) CleanTitle(raw string) string {
	return l.EditorialCasing(CleanChapterTitle(SingleLine(RemoveEmojis(raw))), PolicyTitle)
}
