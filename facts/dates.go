package facts

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EarliestDate — нижняя граница окна допустимых дат события. Даты вне
// окна не подгоняются, а отбрасываются.
var EarliestDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Первые 2000 символов текста, в которых ищется дата публикации.
const dateScanLimit = 2000

var (
	euroDatePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	isoDatePattern  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	ruDatePattern   = regexp.MustCompile(`(?i)(\d{1,2})\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)(?:\s+(\d{4}))?`)
	urlDatePattern  = regexp.MustCompile(`/(20\d{2})/(\d{1,2})/(\d{1,2})(?:[/?#]|$)`)
)

var ruMonths = map[string]int{
	"января": 1, "февраля": 2, "марта": 3, "апреля": 4,
	"мая": 5, "июня": 6, "июля": 7, "августа": 8,
	"сентября": 9, "октября": 10, "ноября": 11, "декабря": 12,
}

// resolveDate перебирает стратегии определения даты: явная строка даты,
// сканирование начала текста, путь URL, разобранная дата RSS. Каждая
// стратегия обязана дать дату в допустимом окне, иначе очередь
// переходит к следующей.
func resolveDate(raw RawRecord, now time.Time) (time.Time, bool) {
	if d, ok := ParseFuzzyDate(raw.CandidateDate, now); ok && inWindow(d, now) {
		return d, true
	}
	if d, ok := dateFromText(raw.RawText, now); ok && inWindow(d, now) {
		return d, true
	}
	if d, ok := dateFromURL(raw.URL); ok && inWindow(d, now) {
		return d, true
	}
	if raw.Published != nil {
		d := atMidnight(raw.Published.UTC())
		if inWindow(d, now) {
			return d, true
		}
	}
	return time.Time{}, false
}

func inWindow(d, now time.Time) bool {
	day := atMidnight(d)
	return !day.Before(EarliestDate) && !day.After(atMidnight(now))
}

func atMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseFuzzyDate разбирает дату в свободной форме: европейскую
// DD.MM.YYYY, ISO YYYY-MM-DD или с русским названием месяца. Год при
// русской записи может опускаться, тогда берется текущий.
func ParseFuzzyDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := euroDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := ruDatePattern.FindStringSubmatch(s); m != nil {
		year := now.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		return makeDate(year, ruMonths[strings.ToLower(m[2])], atoi(m[1]))
	}
	return time.Time{}, false
}

// dateFromText ищет дату в начале текста. Совпадение принимается,
// только если рядом есть слово-маркер даты или год попадает в
// диапазон наблюдений: иначе легко поймать номер телефона или приказа.
func dateFromText(text string, now time.Time) (time.Time, bool) {
	runes := []rune(text)
	if len(runes) > dateScanLimit {
		text = string(runes[:dateScanLimit])
	}
	lower := strings.ToLower(text)

	type parsed struct {
		date  time.Time
		start int
	}
	try := func(pattern *regexp.Regexp, build func([]string) (time.Time, bool)) (parsed, bool) {
		for _, idx := range pattern.FindAllStringSubmatchIndex(lower, 8) {
			groups := submatches(lower, idx)
			d, ok := build(groups)
			if !ok {
				continue
			}
			if hasDateMarker(lower, idx[0]) || (d.Year() >= 2020 && d.Year() <= now.Year()) {
				return parsed{date: d, start: idx[0]}, true
			}
		}
		return parsed{}, false
	}

	if p, ok := try(euroDatePattern, func(m []string) (time.Time, bool) {
		return makeDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}); ok {
		return p.date, true
	}
	if p, ok := try(isoDatePattern, func(m []string) (time.Time, bool) {
		return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}); ok {
		return p.date, true
	}
	if p, ok := try(ruDatePattern, func(m []string) (time.Time, bool) {
		year := now.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		return makeDate(year, ruMonths[strings.ToLower(m[2])], atoi(m[1]))
	}); ok {
		return p.date, true
	}
	return time.Time{}, false
}

// hasDateMarker проверяет контекст перед совпадением на слова,
// обычно сопровождающие дату публикации.
func hasDateMarker(lower string, start int) bool {
	from := start - 30
	if from < 0 {
		from = 0
	}
	context := lower[from:start]
	return strings.Contains(context, "дата") ||
		strings.Contains(context, "опубликовано") ||
		strings.Contains(context, " от ") ||
		strings.HasPrefix(context, "от ")
}

// dateFromURL достает дату из пути вида /2024/06/15/.
func dateFromURL(url string) (time.Time, bool) {
	m := urlDatePattern.FindStringSubmatch(url)
	if m == nil {
		return time.Time{}, false
	}
	return makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
}

// makeDate строит дату с проверкой корректности дня и месяца, без
// тихой нормализации вроде 31 февраля.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func submatches(s string, idx []int) []string {
	groups := make([]string, 0, len(idx)/2)
	for i := 0; i < len(idx); i += 2 {
		if idx[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, s[idx[i]:idx[i+1]])
	}
	return groups
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
