package fetch

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// minHTMLSize отсекает заглушки и пустые ответы источников.
const minHTMLSize = 64

// CleanText удаляет null-байты и управляющие символы, ломающие
// парсинг и хранение текста.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}

// ValidateHTML проверяет, что тело ответа пригодно для разбора:
// валидный UTF-8 после чистки, достаточная длина и отсутствие
// мусорных повторов.
func ValidateHTML(body []byte) error {
	text := CleanText(string(body))
	if len(text) < minHTMLSize {
		return fmt.Errorf("ответ слишком короткий: %d байт", len(text))
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("ответ содержит невалидный UTF-8")
	}
	if hasRepeatedChars(text, 100) {
		return fmt.Errorf("ответ похож на мусорные данные")
	}
	return nil
}

// hasRepeatedChars проверяет наличие подозрительно длинных повторяющихся последовательностей
func hasRepeatedChars(s string, maxRepeat int) bool {
	if len(s) < maxRepeat {
		return false
	}
	count := 1
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			count++
			if count >= maxRepeat {
				return true
			}
		} else {
			count = 1
		}
		prev = r
	}
	return false
}
