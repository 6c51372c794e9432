// Package facts извлекает структурированные факты из сырого текста
// новостей: дату события, число обращений и населенный пункт. Дата
// обязательна, остальные поля заполняются по мере возможности.
package facts

import (
	"fmt"
	"strings"
	"time"

	"tick-monitor/config"
	"tick-monitor/store"
)

const (
	maxTitleLen   = 200
	maxContentLen = 5000
)

// RawRecord — кандидат от экстрактора источника до нормализации.
type RawRecord struct {
	RawText       string
	Title         string
	CandidateDate string
	URL           string
	SourceTag     string
	// Published — дата публикации от самого источника, если он ее
	// сообщает: разобранная дата RSS или момент обхода для лент без
	// собственных дат. Используется последней в каскаде определения даты.
	Published *time.Time
}

// Keywords — маркеры тематики. Запись без единого маркера не попадает
// в пайплайн.
var Keywords = []string{"клещ", "укус", "энцефалит", "присасыван"}

// HasKeyword проверяет наличие тематического маркера в тексте.
func HasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RiskLevelFor возвращает уровень риска для числа случаев по порогам.
func RiskLevelFor(cases int, t config.RiskLevels) string {
	switch {
	case cases == 0:
		return store.RiskNone
	case cases < t.Low.Threshold:
		return store.RiskLow
	case cases < t.Moderate.Threshold:
		return store.RiskModerate
	case cases < t.High.Threshold:
		return store.RiskHigh
	default:
		return store.RiskVeryHigh
	}
}

// Normalize превращает сырую запись источника в нормализованную запись
// хранилища. Ошибка означает отказ: дату события определить не удалось.
func Normalize(raw RawRecord, thresholds config.RiskLevels) (store.Record, error) {
	date, ok := resolveDate(raw, time.Now())
	if !ok {
		return store.Record{}, fmt.Errorf("не удалось определить дату публикации для %q", truncateRunes(raw.Title, 60))
	}

	title := truncateRunes(strings.TrimSpace(raw.Title), maxTitleLen)
	content := truncateRunes(strings.TrimSpace(raw.RawText), maxContentLen)

	searchText := title + "\n" + raw.RawText
	cases := ExtractCases(searchText)

	return store.Record{
		Date:      store.FormatDate(date),
		Cases:     cases,
		RiskLevel: RiskLevelFor(cases, thresholds),
		Location:  ExtractLocation(searchText),
		Source:    raw.SourceTag,
		Title:     title,
		Content:   content,
		URL:       strings.TrimSpace(raw.URL),
	}, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
