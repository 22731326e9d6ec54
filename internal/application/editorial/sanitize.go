package editorial

// Method /api/sanitize 的清洗方式
type Method string

const (
	MethodChapterTitle Method = "chapter_title"
	MethodEditorial    Method = "editorial"
	MethodDefault      Method = "default"
)

// SanitizeText 默认清洗：去 emoji 并规范化
func SanitizeText(text string) string {
	return NormalizeText(RemoveEmojis(text))
}

// SanitizeLine 书名、作者等单行字段：去 emoji、规范化为单行、大写为主时重排大小写
func (l *Locale) SanitizeLine(text string) string {
	return l.EditorialCasing(SingleLine(RemoveEmojis(text)), PolicyShout)
}

// Sanitize 使用默认语言按方法清洗
func Sanitize(method Method, text string) string {
	return DefaultLocale.Sanitize(method, text)
}

// Sanitize 按方法选择管线，未知方法使用默认管线
func (l *Locale) Sanitize(method Method, text string) string {
	switch method {
	case MethodChapterTitle:
		return l.CleanTitle(text)
	case MethodEditorial:
		return l.EditorialCasing(SanitizeText(text), PolicyShout)
	default:
		return SanitizeText(text)
	}
}
