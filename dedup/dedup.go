// Package dedup решает судьбу каждой записи перед сохранением: вставка
// новой строки, обновление существующей или пропуск дубликата.
package dedup

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"tick-monitor/store"
)

// Action — решение дедупликатора по одной записи.
type Action int

const (
	ActionInserted Action = iota
	ActionUpdated
	ActionSkipped
)

func (a Action) String() string {
	switch a {
	case ActionInserted:
		return "вставка"
	case ActionUpdated:
		return "обновление"
	case ActionSkipped:
		return "пропуск"
	default:
		return "неизвестно"
	}
}

// Окно поиска дубликатов по заголовку вокруг даты записи.
const (
	searchWindowDays = 7
	maxDateDiff      = 24 * time.Hour
)

// Deduper хранит отпечатки записей текущего прогона пайплайна.
// Не потокобезопасен: записи проходят через один последовательный
// обработчик.
type Deduper struct {
	seen map[string]struct{}
}

// New создает дедупликатор на один прогон.
func New() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Fingerprint строит стабильный отпечаток записи по дате, заголовку,
// источнику и URL.
func Fingerprint(rec store.Record) string {
	payload := strings.Join([]string{rec.Date, normalizeTitle(rec.Title), rec.Source, rec.URL}, "|")
	return fmt.Sprintf("%x", md5.Sum([]byte(payload)))
}

func normalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	runes := []rune(title)
	if len(runes) > 200 {
		title = string(runes[:200])
	}
	return title
}

// Apply применяет порядок решения к одной записи в рамках транзакции
// источника: отпечаток прогона, затем совпадение URL, затем совпадение
// источника и заголовка в пределах суток, иначе вставка.
func (d *Deduper) Apply(ctx context.Context, tx *store.Tx, rec store.Record) (Action, error) {
	fp := Fingerprint(rec)
	if _, ok := d.seen[fp]; ok {
		return ActionSkipped, nil
	}

	if rec.URL != "" {
		existing, err := tx.GetByURL(ctx, rec.URL)
		if err != nil {
			return ActionSkipped, err
		}
		if existing != nil {
			if err := tx.UpdateMutable(ctx, existing.ID, rec.Cases, rec.RiskLevel, rec.Content); err != nil {
				return ActionSkipped, err
			}
			d.seen[fp] = struct{}{}
			return ActionUpdated, nil
		}
	}

	match, err := d.findByTitle(ctx, tx, rec)
	if err != nil {
		return ActionSkipped, err
	}
	if match != nil {
		if err := tx.UpdateMutable(ctx, match.ID, rec.Cases, rec.RiskLevel, rec.Content); err != nil {
			return ActionSkipped, err
		}
		d.seen[fp] = struct{}{}
		return ActionUpdated, nil
	}

	if _, err := tx.Insert(ctx, rec); err != nil {
		return ActionSkipped, err
	}
	d.seen[fp] = struct{}{}
	return ActionInserted, nil
}

// findByTitle ищет запись того же источника с тем же заголовком и
// датой в пределах суток, просматривая окно в неделю вокруг даты.
func (d *Deduper) findByTitle(ctx context.Context, tx *store.Tx, rec store.Record) (*store.Record, error) {
	date, err := store.ParseDate(rec.Date)
	if err != nil {
		return nil, fmt.Errorf("некорректная дата записи %q: %w", rec.Date, err)
	}

	from := store.FormatDate(date.AddDate(0, 0, -searchWindowDays))
	to := store.FormatDate(date.AddDate(0, 0, searchWindowDays))
	candidates, err := tx.FindWindow(ctx, rec.Source, from, to)
	if err != nil {
		return nil, err
	}

	title := normalizeTitle(rec.Title)
	for i := range candidates {
		cand := &candidates[i]
		if normalizeTitle(cand.Title) != title {
			continue
		}
		candDate, err := store.ParseDate(cand.Date)
		if err != nil {
			continue
		}
		diff := date.Sub(candDate)
		if diff < 0 {
			diff = -diff
		}
		if diff <= maxDateDiff {
			return cand, nil
		}
	}
	return nil, nil
}
