package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"tick-monitor/monitoring"
)

// Колонки записей в порядке сканирования.
const recordColumns = "id, date, cases, risk_level, location, source, title, content, url, first_seen_at, last_updated_at"

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebind заменяет плейсхолдеры $N на ? для SQLite.
func (s *Store) rebind(query string) string {
	if s.driver == driverPostgres {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}

// querier объединяет *sql.DB и *sql.Tx для общих выборок.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func track(err error) {
	monitoring.IncrementDBQueries()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		monitoring.IncrementDBQueriesErrors()
	}
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	var firstSeen, lastUpdated string
	if err := scanner.Scan(&rec.ID, &rec.Date, &rec.Cases, &rec.RiskLevel, &rec.Location,
		&rec.Source, &rec.Title, &rec.Content, &rec.URL, &firstSeen, &lastUpdated); err != nil {
		return Record{}, err
	}
	rec.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
	rec.LastUpdatedAt, _ = time.Parse(time.RFC3339, lastUpdated)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// QueryRange возвращает записи в диапазоне дат включительно, новые первыми.
func (s *Store) QueryRange(ctx context.Context, startDate, endDate string) ([]Record, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM tick_records WHERE date >= $1 AND date <= $2 ORDER BY date DESC, id DESC`)
	rows, err := s.db.QueryContext(ctx, query, startDate, endDate)
	track(err)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей за период: %w", err)
	}
	return collectRecords(rows)
}

// QueryRecent возвращает последние записи по дате.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]Record, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM tick_records ORDER BY date DESC, id DESC LIMIT $1`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	track(err)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки последних записей: %w", err)
	}
	return collectRecords(rows)
}

// All возвращает все записи в порядке возрастания даты.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM tick_records ORDER BY date ASC, id ASC`)
	track(err)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки всех записей: %w", err)
	}
	return collectRecords(rows)
}

// GetByURL возвращает запись по URL или nil, если ее нет.
func (s *Store) GetByURL(ctx context.Context, url string) (*Record, error) {
	return s.getByURL(ctx, s.db, url)
}

func (s *Store) getByURL(ctx context.Context, q querier, url string) (*Record, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+recordColumns+` FROM tick_records WHERE url = $1`), url)
	rec, err := scanRecord(row)
	track(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска записи по URL: %w", err)
	}
	return &rec, nil
}

// GetWeek возвращает ближайшую запись с датой не позже чем weeksAgo
// недель назад. Если таких записей нет, возвращается пустая сводка с
// уровнем "Нет данных" на дату отсечки.
func (s *Store) GetWeek(ctx context.Context, weeksAgo int) (WeekStat, error) {
	cutoff := FormatDate(time.Now().AddDate(0, 0, -7*weeksAgo))
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT cases, risk_level, date FROM tick_records WHERE date <= $1 ORDER BY date DESC, id DESC LIMIT 1`), cutoff)

	var stat WeekStat
	err := row.Scan(&stat.Cases, &stat.RiskLevel, &stat.Date)
	track(err)
	if errors.Is(err, sql.ErrNoRows) {
		return WeekStat{Cases: 0, RiskLevel: RiskNone, Date: cutoff}, nil
	}
	if err != nil {
		return WeekStat{}, fmt.Errorf("ошибка выборки недельной сводки: %w", err)
	}
	if stat.RiskLevel == "" {
		stat.RiskLevel = RiskNone
	}
	return stat, nil
}

// Count возвращает общее число записей.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tick_records`).Scan(&count)
	track(err)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета записей: %w", err)
	}
	return count, nil
}

// CountBySource возвращает число записей по каждому источнику.
func (s *Store) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM tick_records GROUP BY source`)
	track(err)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета записей по источникам: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		counts[source] = count
	}
	return counts, rows.Err()
}

// LastUpdated возвращает время последнего изменения данных.
// Метки времени в UTC RFC3339, поэтому MAX по тексту корректен.
func (s *Store) LastUpdated(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(last_updated_at) FROM tick_records`).Scan(&raw)
	track(err)
	if err != nil {
		return time.Time{}, fmt.Errorf("ошибка выборки времени обновления: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, nil
	}
	return ts, nil
}

// Tx — транзакция пайплайна: одна на источник за прогон.
type Tx struct {
	s  *Store
	tx *sql.Tx
}

// WithTx выполняет fn в транзакции. Ошибка или паника fn приводит к
// откату, паника пробрасывается дальше.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка открытия транзакции: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{s: s, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			storeLogger.Error("Ошибка отката транзакции: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Insert добавляет новую запись и возвращает ее id.
func (tx *Tx) Insert(ctx context.Context, rec Record) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	const base = `INSERT INTO tick_records (date, cases, risk_level, location, source, title, content, url, first_seen_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	args := []any{rec.Date, rec.Cases, rec.RiskLevel, rec.Location, rec.Source, rec.Title, rec.Content, rec.URL, now, now}

	var id int64
	var err error
	if tx.s.driver == driverPostgres {
		err = tx.tx.QueryRowContext(ctx, base+` RETURNING id`, args...).Scan(&id)
	} else {
		var res sql.Result
		res, err = tx.tx.ExecContext(ctx, tx.s.rebind(base), args...)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	track(err)
	if err != nil {
		return 0, fmt.Errorf("ошибка при добавлении записи: %w", err)
	}
	return id, nil
}

// UpdateMutable обновляет изменяемые поля записи: число случаев,
// уровень риска, контент и время обновления.
func (tx *Tx) UpdateMutable(ctx context.Context, id int64, cases int, riskLevel, content string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := tx.s.rebind(`UPDATE tick_records SET cases = $1, risk_level = $2, content = $3, last_updated_at = $4 WHERE id = $5`)
	_, err := tx.tx.ExecContext(ctx, query, cases, riskLevel, content, now, id)
	track(err)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи %d: %w", id, err)
	}
	return nil
}

// GetByURL возвращает запись по URL в рамках транзакции.
func (tx *Tx) GetByURL(ctx context.Context, url string) (*Record, error) {
	return tx.s.getByURL(ctx, tx.tx, url)
}

// FindWindow возвращает записи источника в окне дат для поиска дубликатов.
func (tx *Tx) FindWindow(ctx context.Context, source, from, to string) ([]Record, error) {
	query := tx.s.rebind(`SELECT ` + recordColumns + ` FROM tick_records WHERE source = $1 AND date >= $2 AND date <= $3`)
	rows, err := tx.tx.QueryContext(ctx, query, source, from, to)
	track(err)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска дубликатов: %w", err)
	}
	return collectRecords(rows)
}
