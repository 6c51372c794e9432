// Package aggregate сворачивает записи в недельные корзины по
// календарю ISO-8601: неделя начинается в понедельник, корзина
// суммирует случаи и несет уровень риска по порогам.
package aggregate

import (
	"context"
	"sort"
	"time"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/monitoring"
	"tick-monitor/store"
)

var aggLogger = monitoring.NewLogger("Aggregate")

// WeekBucket — одна ISO-неделя с суммой случаев по записям.
type WeekBucket struct {
	Year      int
	Week      int
	Start     time.Time // понедельник
	End       time.Time // воскресенье
	MinDate   string
	MaxDate   string
	Cases     int
	Count     int
	RiskLevel string
}

// Label возвращает подпись корзины для графика в виде "DD.MM-DD.MM".
func (b WeekBucket) Label() string {
	return b.Start.Format("02.01") + "-" + b.End.Format("02.01")
}

// Fold группирует записи по ISO-неделям. Корзины отсортированы по
// началу недели, сумма случаев корзин равна сумме случаев записей.
func Fold(records []store.Record, thresholds config.RiskLevels) []WeekBucket {
	type key struct {
		year int
		week int
	}
	buckets := make(map[key]*WeekBucket)

	for _, rec := range records {
		date, err := store.ParseDate(rec.Date)
		if err != nil {
			aggLogger.Warn("Пропущена запись %d с некорректной датой %q", rec.ID, rec.Date)
			continue
		}
		year, week := date.ISOWeek()
		k := key{year: year, week: week}

		b, ok := buckets[k]
		if !ok {
			start := isoWeekStart(date)
			b = &WeekBucket{
				Year:    year,
				Week:    week,
				Start:   start,
				End:     start.AddDate(0, 0, 6),
				MinDate: rec.Date,
				MaxDate: rec.Date,
			}
			buckets[k] = b
		}
		b.Cases += rec.Cases
		b.Count++
		if rec.Date < b.MinDate {
			b.MinDate = rec.Date
		}
		if rec.Date > b.MaxDate {
			b.MaxDate = rec.Date
		}
	}

	result := make([]WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		b.RiskLevel = facts.RiskLevelFor(b.Cases, thresholds)
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Start.Before(result[j].Start)
	})
	return result
}

// FromStore читает все записи хранилища и сворачивает их в корзины.
func FromStore(ctx context.Context, s *store.Store, thresholds config.RiskLevels) ([]WeekBucket, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return Fold(records, thresholds), nil
}

// isoWeekStart возвращает понедельник ISO-недели, которой принадлежит
// дата.
func isoWeekStart(date time.Time) time.Time {
	weekday := int(date.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return atMidnight(date.AddDate(0, 0, 1-weekday))
}

func atMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
