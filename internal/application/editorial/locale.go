package editorial

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Locale 语言相关的标签与虚词表
type Locale struct {
	Code         string
	Tag          language.Tag
	ChapterLabel string
	ByLabel      string
	TOCLabel     string
	Untitled     string

	minorWords map[string]struct{}
	elisions   map[string]struct{}
}

// 意大利语冠词、介词（含缩合形式）与连词
var italianMinorWords = []string{
	"il", "lo", "la", "i", "gli", "le", "l", "un", "uno", "una", "d",
	"di", "a", "da", "in", "con", "su", "per", "tra", "fra",
	"e", "ed", "o", "od", "ma", "né", "che",
	"del", "dello", "della", "dei", "degli", "delle", "dell",
	"al", "allo", "alla", "ai", "agli", "alle", "all",
	"dal", "dallo", "dalla", "dai", "dagli", "dalle", "dall",
	"nel", "nello", "nella", "nei", "negli", "nelle", "nell",
	"sul", "sullo", "sulla", "sui", "sugli", "sulle", "sull",
	"col", "coi",
}

// 省略冠词：撇号后的字母大写（L'Inizio, dell'Alba）
var italianElisions = []string{
	"l", "d", "un", "dell", "dall", "nell", "sull", "all", "coll", "quell", "quest",
}

var englishMinorWords = []string{
	"a", "an", "the",
	"and", "but", "or", "nor", "for", "so", "yet",
	"as", "at", "by", "in", "of", "on", "to", "up", "via", "per",
	"from", "into", "with", "over", "off",
}

var (
	localeIT = newLocale("it", language.Italian, "Capitolo", "di", "Indice", "Senza titolo", italianMinorWords, italianElisions)
	localeEN = newLocale("en", language.English, "Chapter", "by", "Table of Contents", "Untitled", englishMinorWords, nil)
)

// DefaultLocale 默认语言（意大利语）
var DefaultLocale = localeIT

func newLocale(code string, tag language.Tag, chapter, by, toc, untitled string, minor, elisions []string) *Locale {
	l := &Locale{
		Code:         code,
		Tag:          tag,
		ChapterLabel: chapter,
		ByLabel:      by,
		TOCLabel:     toc,
		Untitled:     untitled,
		minorWords:   make(map[string]struct{}, len(minor)),
		elisions:     make(map[string]struct{}, len(elisions)),
	}
	for _, w := range minor {
		l.minorWords[w] = struct{}{}
	}
	for _, w := range elisions {
		l.elisions[w] = struct{}{}
	}
	return l
}

// LocaleFor 根据语言代码返回 Locale，未知语言回落到默认值
// 接受 "it", "en", "en-US", "it_IT" 等形式
func LocaleFor(code string) *Locale {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "en":
		return localeEN
	case "it":
		return localeIT
	default:
		return DefaultLocale
	}
}

func (l *Locale) isMinor(word string) bool {
	_, ok := l.minorWords[word]
	return ok
}

func (l *Locale) isElision(prefix string) bool {
	_, ok := l.elisions[prefix]
	return ok
}

// cases.Caser 有内部状态，不能跨 goroutine 共享，每次调用新建
func (l *Locale) toLower(s string) string {
	return cases.Lower(l.Tag).String(s)
}

func (l *Locale) toUpper(s string) string {
	return cases.Upper(l.Tag).String(s)
}
