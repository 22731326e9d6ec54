package editorial

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	hrTagPattern       = regexp.MustCompile(`(?i)<hr\s*/?>`)
	horizontalSpace    = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	spaceAroundNewline = regexp.MustCompile(` *\n *`)
	excessNewlines     = regexp.MustCompile(`\n{3,}`)
	anyNewlines        = regexp.MustCompile(`\n+`)
)

// NormalizeText 规范化文本：统一换行、去除 XML 非法字符与 <hr>、NFC、合并水平空白、段落间最多一个空行、去首尾空白
// 幂等：NormalizeText(NormalizeText(x)) == NormalizeText(x)
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	// 先统一空白，<hr\u00a0> 之类的变体才能被匹配
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = strings.Map(xmlSafeRune, s)

	// 删除后可能拼出新的 <hr>，循环直到稳定
	for hrTagPattern.MatchString(s) {
		s = hrTagPattern.ReplaceAllString(s, "")
	}

	// 删除标签可能让组合字符贴上前一个字母，NFC 放在删除之后
	s = norm.NFC.String(s)
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = spaceAroundNewline.ReplaceAllString(s, "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// xmlSafeRune 丢弃 XML 1.0 不允许的字符（\t、\n 之外的 C0 控制符与 U+FFFE/U+FFFF）
func xmlSafeRune(r rune) rune {
	switch {
	case r == '\t' || r == '\n':
		return r
	case r < 0x20, r == 0xFFFE, r == 0xFFFF:
		return -1
	default:
		return r
	}
}

// SingleLine 规范化后将换行折叠为空格，用于标题、作者等单行字段
func SingleLine(text string) string {
	return strings.TrimSpace(anyNewlines.ReplaceAllString(NormalizeText(text), " "))
}
