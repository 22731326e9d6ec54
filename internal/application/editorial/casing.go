package editorial

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CasingPolicy 大小写策略
type CasingPolicy int

const (
	// PolicyShout 仅当文本以大写为主时才重排大小写，正常文本原样返回
	// 用于书名、作者和自由编辑文本
	PolicyShout CasingPolicy = iota
	// PolicyTitle 总是先小写再按标题规则首字母大写
	// 用于章节标题
	PolicyTitle
)

// shoutThreshold 判定为"大写为主"的最少大写字母数
const shoutThreshold = 3

var tokenPattern = regexp.MustCompile(`\S+`)

// EditorialCasing 使用默认语言进行标题大小写
func EditorialCasing(text string, policy CasingPolicy) string {
	return DefaultLocale.EditorialCasing(text, policy)
}

// IsShouted 大写字母数多于小写字母数且超过阈值
func IsShouted(text string) bool {
	var upper, lower int
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	return upper > lower && upper > shoutThreshold
}

// EditorialCasing 按策略重排大小写
// 虚词除首词外保持小写，冒号或破折号之后的词视为首词
// 2-4 个字母的全大写词在非大写为主的文本中视为缩写保留
func (l *Locale) EditorialCasing(text string, policy CasingPolicy) string {
	if text == "" {
		return ""
	}
	shouted := IsShouted(text)
	if policy == PolicyShout && !shouted {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	last := 0
	first := true
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		b.WriteString(text[last:loc[0]])
		tok := text[loc[0]:loc[1]]

		cased, hasWord := l.caseToken(tok, first, shouted)
		b.WriteString(cased)

		if hasWord {
			first = false
		}
		if endsClause(tok) {
			first = true
		}
		last = loc[1]
	}
	b.WriteString(text[last:])

	return b.String()
}

func (l *Locale) caseToken(tok string, first, shouted bool) (string, bool) {
	core := strings.TrimFunc(tok, func(r rune) bool { return !isWordRune(r) })
	if core == "" {
		return tok, false
	}
	if !shouted && isAcronym(core) {
		return tok, true
	}

	head := l.toLower(core)
	if i := strings.IndexAny(head, "'’"); i > 0 && l.isElision(head[:i]) {
		head = head[:i]
	}
	capNext := first || !l.isMinor(head)

	lowered := l.toLower(tok)

	var out strings.Builder
	out.Grow(len(lowered))
	var seg strings.Builder

	for _, r := range lowered {
		if isWordRune(r) {
			if seg.Len() == 0 && capNext {
				out.WriteString(l.toUpper(string(r)))
			} else {
				out.WriteRune(r)
			}
			seg.WriteRune(r)
			continue
		}

		out.WriteRune(r)
		if seg.Len() == 0 {
			continue
		}
		switch r {
		case '\'', '’':
			capNext = l.isElision(seg.String())
		case '-':
			capNext = true
		default:
			capNext = false
		}
		seg.Reset()
	}

	return out.String(), true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isAcronym(word string) bool {
	n := utf8.RuneCountInString(word)
	if n < 2 || n > 4 {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func endsClause(tok string) bool {
	switch tok {
	case "-", "–", "—":
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(tok)
	return r == ':' || r == '.' || r == '!' || r == '?'
}
