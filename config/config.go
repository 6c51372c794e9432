// Package config загружает настройки мониторинга из JSON-файла и переменных
// окружения. Отсутствующий или некорректный файл не останавливает запуск:
// приложение продолжает работу на значениях по умолчанию.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация приложения.
type Config struct {
	Parsing    Parsing    `json:"parsing"`
	RiskLevels RiskLevels `json:"risk_levels"`
	Graph      Graph      `json:"graph"`
	Logging    Logging    `json:"logging"`
	Database   Database   `json:"database"`
	Redis      Redis      `json:"redis"`
	Server     Server     `json:"server"`
	News       News       `json:"news"`
}

// Parsing — параметры пайплайна сбора данных.
type Parsing struct {
	// Интервал автоматического обновления в минутах.
	AutoUpdateIntervalMinutes int `json:"auto_update_interval_minutes" env:"AUTO_UPDATE_INTERVAL_MINUTES" env-default:"20"`
	// Количество попыток HTTP-запроса.
	RetryCount int `json:"retry_count" env:"PARSING_RETRY_COUNT" env-default:"3"`
	// Пауза между попытками в секундах.
	RetryDelay int `json:"retry_delay" env:"PARSING_RETRY_DELAY" env-default:"2"`
	// Таймаут одного запроса в секундах.
	Timeout int `json:"timeout" env:"PARSING_TIMEOUT" env-default:"15"`
	Sources Sources `json:"sources"`
}

// Sources — настройки отдельных источников данных.
type Sources struct {
	WebSearch           Source `json:"web_search"`
	RSS                 Source `json:"rss"`
	Telegram            Source `json:"telegram"`
	VK                  Source `json:"vk"`
	LocalNews           Source `json:"local_news"`
	RospotrebnadzorNews Source `json:"rospotrebnadzor_news"`
	TyumenNews          Source `json:"tyumen_news"`
	MedicalAPI          Source `json:"medical_api"`
	PDFBulletin         Source `json:"pdf_bulletin"`
}

// Source — настройки одного источника. Поле Enabled трёхзначное:
// nil означает «по умолчанию для этого источника».
type Source struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	URL       string `json:"url,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	SearchURL string `json:"search_url,omitempty"`
	RSSURL    string `json:"rss_url,omitempty"`
	// APIKey нужен только источникам с авторизацией. Переменная
	// окружения MEDICAL_API_KEY имеет приоритет над файлом.
	APIKey   string `json:"api_key,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// IsOn возвращает фактическое состояние источника с учётом умолчания.
func (s Source) IsOn(def bool) bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return def
}

// RiskLevels — пороги уровней риска по числу случаев.
type RiskLevels struct {
	Low      Threshold `json:"low"`
	Moderate Threshold `json:"moderate"`
	High     Threshold `json:"high"`
	VeryHigh Threshold `json:"very_high"`
}

type Threshold struct {
	Threshold int `json:"threshold"`
}

// Graph — ограничения выборок для графика.
type Graph struct {
	WeeksToShow      int `json:"weeks_to_show" env:"GRAPH_WEEKS_TO_SHOW" env-default:"8"`
	FilteredMaxItems int `json:"filtered_max_items" env:"GRAPH_FILTERED_MAX_ITEMS" env-default:"1000"`
}

// Logging — настройки журнала с ротацией.
type Logging struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Level       string `json:"level" env:"LOG_LEVEL" env-default:"INFO"`
	File        string `json:"file" env:"LOG_FILE" env-default:"logs/app.log"`
	MaxBytes    int    `json:"max_bytes" env:"LOG_MAX_BYTES" env-default:"10485760"`
	BackupCount int    `json:"backup_count" env:"LOG_BACKUP_COUNT" env-default:"5"`
}

// Database — строка подключения. Схема postgres:// выбирает PostgreSQL,
// всё остальное трактуется как файл SQLite.
type Database struct {
	DSN string `json:"dsn" env:"DATABASE_URL" env-default:"file:tick_data.db"`
}

// Redis — кэш ответов API. По умолчанию выключен.
type Redis struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Addr       string `json:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password   string `json:"password" env:"REDIS_PASSWORD"`
	DB         int    `json:"db" env:"REDIS_DB" env-default:"0"`
	TTLSeconds int    `json:"ttl_seconds" env:"REDIS_TTL_SECONDS" env-default:"300"`
}

// Server — адрес HTTP-сервера API.
type Server struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT" env-default:"8080"`
}

// News — окно анализа для новостной ленты.
type News struct {
	DaysBack int `json:"days_back" env:"NEWS_DAYS_BACK" env-default:"30"`
}

// Load загружает конфигурацию. Приоритет пути: явный аргумент, затем
// переменная CONFIG_PATH, затем ./config.json. Ошибка чтения или разбора
// файла не фатальна: приложение стартует на умолчаниях и переменных
// окружения.
func Load(path string) *Config {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.json"
	}

	var cfg Config
	if _, err := os.Stat(path); err != nil {
		log.Printf("Файл конфигурации %s не найден, используются значения по умолчанию", path)
		mustReadEnv(&cfg)
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		log.Printf("Ошибка разбора конфигурации %s: %v — используются значения по умолчанию", path, err)
		cfg = Config{}
		mustReadEnv(&cfg)
	}

	cfg.normalize()
	return &cfg
}

func mustReadEnv(cfg *Config) {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("Ошибка чтения переменных окружения: %v", err)
	}
}

// normalize дополняет незаполненные поля умолчаниями и приводит
// некорректные значения к рабочим.
func (c *Config) normalize() {
	if c.Parsing.AutoUpdateIntervalMinutes <= 0 {
		c.Parsing.AutoUpdateIntervalMinutes = 20
	}
	if c.Parsing.RetryCount <= 0 {
		c.Parsing.RetryCount = 3
	}
	if c.Parsing.RetryDelay < 0 {
		c.Parsing.RetryDelay = 2
	}
	if c.Parsing.Timeout <= 0 {
		c.Parsing.Timeout = 15
	}

	s := &c.Parsing.Sources
	fillSource(&s.WebSearch, "", "https://72.rospotrebnadzor.ru", "", "", 200)
	fillSource(&s.RSS, "", "", "", "https://72.rospotrebnadzor.ru/rss/", 100)
	fillSource(&s.Telegram, "https://t.me/s/tu_ymen72", "", "", "", 50)
	fillSource(&s.VK, "https://vk.com/tyumen", "", "", "", 20)
	fillSource(&s.LocalNews, "", "https://72.ru", "", "", 30)
	fillSource(&s.RospotrebnadzorNews, "", "https://72.rospotrebnadzor.ru", "", "", 50)
	fillSource(&s.TyumenNews, "", "", "", "", 30)
	fillSource(&s.MedicalAPI, "", "", "", "", 100)
	fillSource(&s.PDFBulletin, "", "", "", "", 10)

	if c.RiskLevels.Low.Threshold <= 0 {
		c.RiskLevels.Low.Threshold = 50
	}
	if c.RiskLevels.Moderate.Threshold <= 0 {
		c.RiskLevels.Moderate.Threshold = 100
	}
	if c.RiskLevels.High.Threshold <= 0 {
		c.RiskLevels.High.Threshold = 150
	}
	if c.RiskLevels.VeryHigh.Threshold <= 0 {
		c.RiskLevels.VeryHigh.Threshold = 999999
	}

	if c.Graph.WeeksToShow <= 0 {
		c.Graph.WeeksToShow = 8
	}
	if c.Graph.FilteredMaxItems <= 0 {
		c.Graph.FilteredMaxItems = 1000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.File == "" {
		c.Logging.File = "logs/app.log"
	}
	if c.Logging.MaxBytes <= 0 {
		c.Logging.MaxBytes = 10485760
	}
	if c.Logging.BackupCount <= 0 {
		c.Logging.BackupCount = 5
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:tick_data.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 300
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = 8080
	}
	if c.News.DaysBack <= 0 {
		c.News.DaysBack = 30
	}
}

func fillSource(s *Source, url, baseURL, searchURL, rssURL string, maxItems int) {
	if s.URL == "" {
		s.URL = url
	}
	if s.BaseURL == "" {
		s.BaseURL = baseURL
	}
	if s.SearchURL == "" {
		s.SearchURL = searchURL
	}
	if s.RSSURL == "" {
		s.RSSURL = rssURL
	}
	if s.MaxItems <= 0 {
		s.MaxItems = maxItems
	}
}

// ListenAddr возвращает адрес прослушивания HTTP-сервера.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggingEnabled — фактическое состояние журнала (по умолчанию включён).
func (c *Config) LoggingEnabled() bool {
	if c.Logging.Enabled != nil {
		return *c.Logging.Enabled
	}
	return true
}

// RedisEnabled — фактическое состояние кэша Redis (по умолчанию выключен).
func (c *Config) RedisEnabled() bool {
	if c.Redis.Enabled != nil {
		return *c.Redis.Enabled
	}
	return false
}
