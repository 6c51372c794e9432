package facts

import (
	"regexp"
	"strconv"
	"strings"
)

// maxPlausibleCases отсекает явные ошибки распознавания: номера
// телефонов, годы, идентификаторы.
const maxPlausibleCases = 10000

// Каскад шаблонов числа обращений, от самых точных формулировок к
// общим. Первый шаблон с правдоподобным числом побеждает.
var caseCascade = []*regexp.Regexp{
	regexp.MustCompile(`(?i)зарегистрировано\D*(\d+)\D*обращ`),
	regexp.MustCompile(`(?i)выявлено\D*(\d+)\D*случа`),
	regexp.MustCompile(`(?i)(\d+)\D*укус`),
	regexp.MustCompile(`(?i)клещ\D*(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:случа|обращени)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:человек|жител)`),
	regexp.MustCompile(`(?i)обратилось\D*(\d+)`),
	regexp.MustCompile(`(?i)поступило\D*(\d+)\D*обращ`),
	regexp.MustCompile(`(?i)(\d+)\D*пострадал`),
	regexp.MustCompile(`(?i)(\d+)\D*присасыван`),
}

// Второй проход: первое число недалеко от тематического слова.
var proximityPatterns = buildProximityPatterns()

func buildProximityPatterns() []*regexp.Regexp {
	keywords := []string{"клещ", "укус", "обращение", "случай", "присасывание"}
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+kw+`[^0-9]{0,60}(\d{1,4})`))
	}
	return patterns
}

// ExtractCases извлекает число обращений из текста. Ноль означает
// упоминание без количества. Текст без тематических маркеров числа
// не получает: шаблоны вроде "N человек" вне контекста клещей
// выхватывали бы посторонние цифры.
func ExtractCases(text string) int {
	if !HasKeyword(text) {
		return 0
	}
	for _, pattern := range caseCascade {
		if n, ok := firstPlausible(pattern, text); ok {
			return n
		}
	}
	for _, pattern := range proximityPatterns {
		if n, ok := firstPlausible(pattern, text); ok {
			return n
		}
	}
	return 0
}

func firstPlausible(pattern *regexp.Regexp, text string) (int, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil || n <= 0 || n > maxPlausibleCases {
		return 0, false
	}
	return n, true
}
