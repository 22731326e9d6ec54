// Package editorial 提供编辑级文本清洗：去除 emoji、规范化空白与换行、标题大小写和章节标题整理
// 所有函数均为纯函数，空输入返回空串
package editorial

import (
	"strings"
	"unicode"
)

// emojiTable emoji 与象形符号区段
var emojiTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1}, // ZWJ
		{Lo: 0x20E3, Hi: 0x20E3, Stride: 1}, // keycap
		{Lo: 0x231A, Hi: 0x231B, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23CF, Hi: 0x23CF, Stride: 1},
		{Lo: 0x23E9, Hi: 0x23F3, Stride: 1},
		{Lo: 0x23F8, Hi: 0x23FA, Stride: 1},
		{Lo: 0x24C2, Hi: 0x24C2, Stride: 1},
		{Lo: 0x25AA, Hi: 0x25AB, Stride: 1},
		{Lo: 0x25B6, Hi: 0x25B6, Stride: 1},
		{Lo: 0x25C0, Hi: 0x25C0, Stride: 1},
		{Lo: 0x25FB, Hi: 0x25FE, Stride: 1},
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2B05, Hi: 0x2B07, Stride: 1},
		{Lo: 0x2B1B, Hi: 0x2B1C, Stride: 1},
		{Lo: 0x2B50, Hi: 0x2B50, Stride: 1},
		{Lo: 0x2B55, Hi: 0x2B55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303D, Hi: 0x303D, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
		{Lo: 0xFE0E, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1FAFF, Stride: 1}, // mahjong .. symbols & pictographs ext-A, flags
		{Lo: 0xE0020, Hi: 0xE007F, Stride: 1}, // tag sequences
	},
}

// IsEmoji 判断码点是否属于 emoji/象形符号
func IsEmoji(r rune) bool {
	return unicode.Is(emojiTable, r)
}

// RemoveEmojis 删除 emoji 与象形符号，其余字符（包括周围空格）保持不变
func RemoveEmojis(text string) string {
	if text == "" {
		return ""
	}
	if strings.IndexFunc(text, IsEmoji) < 0 {
		return text
	}
	return strings.Map(func(r rune) rune {
		if IsEmoji(r) {
			return -1
		}
		return r
	}, text)
}
