package monitoring

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StructuredLogger предоставляет структурированное логирование с zap
type StructuredLogger struct {
	logger *zap.SugaredLogger
}

var (
	structuredMu   sync.RWMutex
	structuredBase = buildStructured(os.Getenv("LOG_LEVEL"), nil, true)
)

func zapLevel(level string) zapcore.Level {
	switch level {
	case "DEBUG", "debug":
		return zapcore.DebugLevel
	case "INFO", "info":
		return zapcore.InfoLevel
	case "WARN", "warn", "WARNING", "warning":
		return zapcore.WarnLevel
	case "ERROR", "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func buildStructured(level string, rotor *lumberjack.Logger, enabled bool) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}

	atom := zap.NewAtomicLevelAt(zapLevel(level))
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), atom),
	}
	if rotor != nil {
		// Файл получает JSON для последующего разбора
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotor), atom))
	}
	return zap.New(zapcore.NewTee(cores...))
}

// setupStructured пересобирает общий zap-логгер; вызывается из Setup.
func setupStructured(level string, rotor *lumberjack.Logger, enabled bool) {
	structuredMu.Lock()
	defer structuredMu.Unlock()
	structuredBase = buildStructured(level, rotor, enabled)
}

// NewStructuredLogger создает новый структурированный логгер компонента
func NewStructuredLogger(component string) *StructuredLogger {
	structuredMu.RLock()
	base := structuredBase
	structuredMu.RUnlock()

	sugar := base.Sugar().With("component", component)
	return &StructuredLogger{logger: sugar}
}

// Debug логирует сообщение уровня DEBUG
func (l *StructuredLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

// Info логирует сообщение уровня INFO
func (l *StructuredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

// Warn логирует сообщение уровня WARN
func (l *StructuredLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

// Error логирует сообщение уровня ERROR
func (l *StructuredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

// Fatal логирует сообщение уровня FATAL и завершает программу
func (l *StructuredLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.logger.Fatalw(msg, keysAndValues...)
}

// With добавляет постоянные поля к логгеру
func (l *StructuredLogger) With(keysAndValues ...interface{}) *StructuredLogger {
	return &StructuredLogger{
		logger: l.logger.With(keysAndValues...),
	}
}

// Sync синхронизирует буферы логов
func (l *StructuredLogger) Sync() error {
	return l.logger.Sync()
}

// GetLogger возвращает логгер для указанного компонента
func GetLogger(component string) *StructuredLogger {
	return NewStructuredLogger(component)
}

// LogOperation логирует операцию с ее результатом
func (l *StructuredLogger) LogOperation(operation string, success bool, duration int64, extraFields ...interface{}) {
	fields := []interface{}{
		"operation", operation,
		"success", success,
		"duration_ms", duration,
	}

	fields = append(fields, extraFields...)

	if success {
		l.Info("operation completed", fields...)
	} else {
		l.Error("operation failed", fields...)
	}
}

// LogHTTPRequest логирует HTTP запрос
func (l *StructuredLogger) LogHTTPRequest(method, url, status string, duration int64, size int64) {
	l.Info("http request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", duration,
		"response_size", size,
	)
}

// LogDatabaseQuery логирует запрос к БД
func (l *StructuredLogger) LogDatabaseQuery(query string, duration int64, rowsAffected int64, err error) {
	if err != nil {
		l.Error("database query failed",
			"query", query,
			"duration_ms", duration,
			"error", err.Error(),
		)
	} else {
		l.Debug("database query completed",
			"query", query,
			"duration_ms", duration,
			"rows_affected", rowsAffected,
		)
	}
}

// LogCircuitBreakerEvent логирует события circuit breaker
func (l *StructuredLogger) LogCircuitBreakerEvent(name, event string, state string) {
	l.Info("circuit breaker event",
		"circuit_breaker", name,
		"event", event,
		"state", state,
	)
}

// LogPipelineRun логирует итог одного прогона пайплайна сбора данных
func (l *StructuredLogger) LogPipelineRun(runID string, durationMs int64, inserted, updated, skipped, rejected, errors int) {
	l.Info("pipeline run finished",
		"run_id", runID,
		"duration_ms", durationMs,
		"inserted", inserted,
		"updated", updated,
		"skipped", skipped,
		"rejected", rejected,
		"errors", errors,
	)
}
