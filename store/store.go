// Package store хранит нормализованные записи об активности клещей и
// отвечает на запросы по датам и неделям. Поддерживаются PostgreSQL и
// встраиваемый SQLite, выбор определяется схемой DSN.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tick-monitor/monitoring"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var storeLogger = monitoring.NewLogger("Store")

// Уровни риска, производные от числа случаев за неделю.
const (
	RiskNone     = "Нет данных"
	RiskLow      = "Низкий"
	RiskModerate = "Умеренный"
	RiskHigh     = "Высокий"
	RiskVeryHigh = "Очень высокий"
)

// DateLayout — формат календарной даты записи в БД.
const DateLayout = "2006-01-02"

// FormatDate приводит время к календарной дате записи.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// ParseDate разбирает календарную дату записи.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Record — одно нормализованное наблюдение об активности клещей.
type Record struct {
	ID            int64     `json:"id"`
	Date          string    `json:"date"`
	Cases         int       `json:"cases"`
	RiskLevel     string    `json:"risk_level"`
	Location      string    `json:"location"`
	Source        string    `json:"source"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	URL           string    `json:"url"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// WeekStat — сводка недели для блока статистики.
type WeekStat struct {
	Cases     int    `json:"cases"`
	RiskLevel string `json:"risk_level"`
	Date      string `json:"date"`
}

// Имена совпадают с именами драйверов в database/sql.
const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// Store — подключение к БД с учетом диалекта плейсхолдеров.
type Store struct {
	db     *sql.DB
	driver string
}

// Connect открывает БД по DSN. DSN со схемой postgres:// подключает
// PostgreSQL, остальные трактуются как файл SQLite.
func Connect(dsn string) (*Store, error) {
	driver := driverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		driver = driverPostgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка соединения с БД: %w", err)
	}

	if driver == driverSQLite {
		// SQLite допускает только одного писателя
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				storeLogger.Warn("Не удалось применить %s: %v", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	storeLogger.Info("Подключение к БД установлено (%s)", driver)
	return &Store{db: db, driver: driver}, nil
}

// InitSchema создает таблицу записей и индексы, если их еще нет.
func (s *Store) InitSchema(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == driverPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tick_records (
			%s,
			date TEXT NOT NULL,
			cases INTEGER NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			first_seen_at TEXT NOT NULL,
			last_updated_at TEXT NOT NULL
		)`, idColumn),
		`CREATE INDEX IF NOT EXISTS idx_tick_records_date ON tick_records (date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tick_records_source_date ON tick_records (source, date)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tick_records_url ON tick_records (url) WHERE url <> ''`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка при создании схемы БД: %w", err)
		}
	}
	storeLogger.Info("Схема базы данных инициализирована")
	return nil
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	return s.db.Close()
}
