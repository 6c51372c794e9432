package monitoring

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровень логирования
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var currentLevel LogLevel = INFO

// SetLogLevel устанавливает уровень логирования
func SetLogLevel(level LogLevel) {
	currentLevel = level
}

// SetLogLevelFromString устанавливает уровень логирования из строки
func SetLogLevelFromString(level string) {
	switch level {
	case "DEBUG", "debug":
		currentLevel = DEBUG
	case "INFO", "info":
		currentLevel = INFO
	case "WARN", "warn", "WARNING", "warning":
		currentLevel = WARN
	case "ERROR", "error":
		currentLevel = ERROR
	default:
		currentLevel = INFO
	}
}

// Setup настраивает журнал приложения: уровень, файл с ротацией и
// общее включение. Вызывается один раз при старте, до Setup пакет
// пишет в stderr с уровнем из LOG_LEVEL.
func Setup(level, file string, maxBytes, backupCount int, enabled bool) {
	SetLogLevelFromString(level)

	if !enabled {
		log.SetOutput(io.Discard)
		setupStructured(level, nil, false)
		return
	}

	var rotor *lumberjack.Logger
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			log.Printf("Не удалось создать каталог журнала %s: %v", filepath.Dir(file), err)
		} else {
			rotor = &lumberjack.Logger{
				Filename:   file,
				MaxSize:    maxBytes / (1024 * 1024),
				MaxBackups: backupCount,
			}
			if rotor.MaxSize <= 0 {
				rotor.MaxSize = 10
			}
		}
	}

	if rotor != nil {
		log.SetOutput(io.MultiWriter(os.Stdout, rotor))
	} else {
		log.SetOutput(os.Stdout)
	}
	setupStructured(level, rotor, true)
}

// Logger предоставляет структурированное логирование
type Logger struct {
	prefix string
}

// NewLogger создает новый логгер с префиксом
func NewLogger(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) log(level LogLevel, levelStr string, format string, args ...interface{}) {
	if level < currentLevel {
		return
	}

	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}

	message := prefix + "[" + levelStr + "] " + format
	log.Printf(message, args...)
}

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, "DEBUG", format, args...)
}

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, "INFO", format, args...)
}

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, "WARN", format, args...)
}

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, "ERROR", format, args...)
}

// Fatal логирует сообщение уровня ERROR и завершает программу
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(ERROR, "FATAL", format, args...)
	os.Exit(1)
}

// Инициализация логирования при импорте пакета
func init() {
	// Можно установить уровень из переменной окружения
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		SetLogLevelFromString(level)
	}
}
