// Package validate проверяет нормализованные записи перед сохранением
// и отклоняет нарушающие инварианты данных. Каждое отклонение несет
// стабильный код причины для счетчиков пайплайна.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"tick-monitor/facts"
	"tick-monitor/store"
)

// Reason — код причины отклонения записи.
type Reason string

const (
	MissingField       Reason = "MissingField"
	BadType            Reason = "BadType"
	NegativeCases      Reason = "NegativeCases"
	ImplausibleCases   Reason = "ImplausibleCases"
	FutureDate         Reason = "FutureDate"
	AncientDate        Reason = "AncientDate"
	OffSeasonWithCases Reason = "OffSeasonWithCases"
	BadURL             Reason = "BadURL"
	OversizedField     Reason = "OversizedField"
)

const (
	maxCases      = 10000
	maxTitleLen   = 200
	maxContentLen = 5000
)

// RejectionError — отклонение записи с кодом причины.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf извлекает код причины из ошибки валидации.
func ReasonOf(err error) (Reason, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// Check проверяет запись на инварианты данных. nil означает, что
// запись можно сохранять.
func Check(rec store.Record) error {
	if rec.Date == "" {
		return reject(MissingField, "Отсутствует обязательное поле: date")
	}
	if rec.Source == "" {
		return reject(MissingField, "Отсутствует обязательное поле: source")
	}
	if rec.Title == "" {
		return reject(MissingField, "Отсутствует обязательное поле: title")
	}

	date, err := store.ParseDate(rec.Date)
	if err != nil {
		return reject(BadType, "Неверный тип поля date: %q", rec.Date)
	}

	if rec.Cases < 0 {
		return reject(NegativeCases, "Отрицательное значение cases: %d", rec.Cases)
	}
	if rec.Cases > maxCases {
		return reject(ImplausibleCases, "Неправдоподобно большое значение cases: %d", rec.Cases)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if date.After(today) {
		return reject(FutureDate, "Дата в будущем: %s", rec.Date)
	}
	if date.Before(facts.EarliestDate) {
		return reject(AncientDate, "Дата слишком старая: %s", rec.Date)
	}

	if rec.Cases > 0 && !InSeason(date) {
		return reject(OffSeasonWithCases,
			"Дата %s вне сезона активности клещей (20 апреля - 10 октября)", rec.Date)
	}

	if rec.URL != "" {
		parsed, err := url.Parse(rec.URL)
		if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return reject(BadURL, "Неверный формат URL: %q", rec.URL)
		}
	}

	if utf8.RuneCountInString(rec.Title) > maxTitleLen {
		return reject(OversizedField, "Слишком длинное поле title: %d символов", utf8.RuneCountInString(rec.Title))
	}
	if utf8.RuneCountInString(rec.Content) > maxContentLen {
		return reject(OversizedField, "Слишком длинное поле content: %d символов", utf8.RuneCountInString(rec.Content))
	}

	return nil
}

// InSeason сообщает, попадает ли дата в сезон активности клещей:
// с 20 апреля по 10 октября включительно.
func InSeason(date time.Time) bool {
	switch date.Month() {
	case time.May, time.June, time.July, time.August, time.September:
		return true
	case time.April:
		return date.Day() >= 20
	case time.October:
		return date.Day() <= 10
	default:
		return false
	}
}
