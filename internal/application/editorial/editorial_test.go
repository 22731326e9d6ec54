package editorial

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"line endings", "a\r\nb\rc", "a\nb\nc"},
		{"collapse blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"keep paragraph break", "a\n\nb", "a\n\nb"},
		{"horizontal whitespace", "  hello   \t world  ", "hello world"},
		{"spaces around newline", "line one   \n   line two", "line one\nline two"},
		{"blank line with spaces", "a\n  \n \n  \nb", "a\n\nb"},
		{"hr tags", "before<hr>after<HR/>x<hr />y", "beforeafterxy"},
		{"nested hr", "<h<hr>r>", ""},
		{"nfc", "e\u0301", "\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"a\r\n\r\n\r\nb",
		"  x \t y \n\n\n z  ",
		"<hr/>titolo<hr >\n\n\n\ncorpo",
		"e ́ \n  f",
		"\r\r\r\r",
		"Capitolo 1\n\n  \n\nIl vento soffiava.  ",
		"a<hr\u00a0>b",
		"a<hr\v/>b",
		"x <hr\u2003> y",
		"e<hr>\u0301 fine",
		"<h\x01r>testo\x02",
	}
	for _, in := range inputs {
		once := NormalizeText(in)
		assert.Equal(t, once, NormalizeText(once), "input %q", in)
	}
}

func TestNormalizeText_StripsXMLIllegalRunes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Testo\x01con controllo", "Testocon controllo"},
		{"a\x00b\x1fc", "abc"},
		{"tab\tresta spazio", "tab resta spazio"},
		{"fine\uffff", "fine"},
		{"<hr\u00a0>dopo", "dopo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), "input %q", tt.in)
	}
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "Il titolo del libro", SingleLine("Il titolo\n\n\ndel  libro\r\n"))
}

func TestRemoveEmojis(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Hello 😀 World", "Hello  World"},
		{"Caffè ☕ e più!", "Caffè  e più!"},
		{"👍🏽", ""},
		{"Italia 🇮🇹", "Italia "},
		{"❤️ amore", " amore"},
		{"Perché? «Sì» — ok. © ™", "Perché? «Sì» — ok. © ™"},
		{"àèéìòù ÀÈÉÌÒÙ ñ ç", "àèéìòù ÀÈÉÌÒÙ ñ ç"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RemoveEmojis(tt.in), "input %q", tt.in)
	}
}

func TestCleanChapterTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Capitolo 3: The Storm", "The Storm"},
		{"No Marker Here", "No Marker Here"},
		{"Chapter IV - Return", "Return"},
		{"Cap. 2 — Notte", "Notte"},
		{"PARTE 1 – Inizio", "Inizio"},
		{"## **Capitolo 1:** L'alba", "L'alba"},
		{"*Chapter 5. Home*", "Home"},
		{"12. Il ritorno", "Il ritorno"},
		{"Chi sono", "Chi sono"},
		{"1984", "1984"},
		{"Capitolo 3", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanChapterTitle(tt.in), "input %q", tt.in)
	}
}

func TestIsShouted(t *testing.T) {
	assert.True(t, IsShouted("IL MIO LIBRO"))
	assert.False(t, IsShouted("Il mio libro"))
	assert.False(t, IsShouted("ABC"))
	assert.False(t, IsShouted(""))
}

func TestEditorialCasing_Title(t *testing.T) {
	it := LocaleFor("it")
	en := LocaleFor("en")

	assert.Equal(t, "La Casa di Carta", it.EditorialCasing("la casa di carta", PolicyTitle))
	assert.Equal(t, "Il Sorgere dell'Alba", it.EditorialCasing("IL SORGERE DELL'ALBA", PolicyTitle))
	assert.Equal(t, "Viaggio: La Partenza", it.EditorialCasing("viaggio: la partenza", PolicyTitle))
	assert.Equal(t, "Viaggio con la NASA", it.EditorialCasing("viaggio con la NASA", PolicyTitle))
	assert.Equal(t, "Viaggio con la Nasa", it.EditorialCasing("VIAGGIO CON LA NASA", PolicyTitle))
	assert.Equal(t, "The Lord of the Rings", en.EditorialCasing("THE LORD OF THE RINGS", PolicyTitle))
	assert.Equal(t, "Jean-Paul", en.EditorialCasing("jean-paul", PolicyTitle))
	assert.Equal(t, "", it.EditorialCasing("", PolicyTitle))
}

func TestEditorialCasing_Shout(t *testing.T) {
	assert.Equal(t, "Il mio libro", EditorialCasing("Il mio libro", PolicyShout))
	assert.Equal(t, "Il Mio Libro", EditorialCasing("IL MIO LIBRO", PolicyShout))
	assert.Equal(t, "ABC", EditorialCasing("ABC", PolicyShout))

	once := EditorialCasing("UNA STORIA DI MARE", PolicyShout)
	assert.Equal(t, "Una Storia di Mare", once)
	assert.Equal(t, once, EditorialCasing(once, PolicyShout))
}

func TestFormatChapterTitle(t *testing.T) {
	got := FormatChapterTitle(0, "CAPITOLO 1 - L'INIZIO")
	assert.Equal(t, "Capitolo 1 – L'Inizio", got)

	body := strings.TrimPrefix(got, "Capitolo 1 – ")
	assert.NotEqual(t, strings.ToUpper(body), body)

	assert.Equal(t, "Capitolo 5", FormatChapterTitle(4, ""))
	assert.Equal(t, "Capitolo 2 – La Tempesta", FormatChapterTitle(1, "🔥 capitolo 7: la tempesta"))
	assert.Equal(t, "Capitolo 3 – Il Ritorno", FormatChapterTitle(2, "Capitolo 3:\nIL RITORNO"))
	assert.Equal(t, "Chapter 3 – The End of It", LocaleFor("en").FormatChapterTitle(2, "Chapter 9. the end of it"))
}

func TestFormatChapterTitle_OrdinalFollowsPosition(t *testing.T) {
	raws := []string{"Capitolo 7: Uno", "Capitolo 7: Due", "Tre"}
	for i, raw := range raws {
		assert.True(t, strings.HasPrefix(FormatChapterTitle(i, raw), "Capitolo "+string(rune('1'+i))+" – "))
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Il Viaggio", Sanitize(MethodChapterTitle, "Capitolo 2: IL VIAGGIO"))
	assert.Equal(t, "Questo È un Testo\n\nFine", Sanitize(MethodEditorial, "QUESTO È UN TESTO 😀\r\n\r\n\r\nFINE"))
	assert.Equal(t, "Testo normale", Sanitize(MethodEditorial, "Testo   normale"))
	assert.Equal(t, "a b", Sanitize(MethodDefault, " a  b "))
	assert.Equal(t, "a b", Sanitize("unknown", " a 😀 b "))
	assert.Equal(t, "", Sanitize(MethodDefault, ""))
}

func TestSanitizeLine(t *testing.T) {
	it := LocaleFor("it")
	assert.Equal(t, "Mario Rossi", it.SanitizeLine("  Mario\n Rossi 🎉 "))
	assert.Equal(t, "La Grande Avventura", it.SanitizeLine("LA GRANDE AVVENTURA"))

	once := it.SanitizeLine("IL LIBRO 📚 DEL MARE")
	assert.Equal(t, once, it.SanitizeLine(once))
}

func TestLocaleFor(t *testing.T) {
	assert.Equal(t, "en", LocaleFor("en-US").Code)
	assert.Equal(t, "it", LocaleFor("it_IT").Code)
	assert.Equal(t, DefaultLocale, LocaleFor("fr"))
	assert.Equal(t, "Chapter", LocaleFor("EN").ChapterLabel)
	assert.Equal(t, "Indice", LocaleFor("").TOCLabel)
}
