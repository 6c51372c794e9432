package monitoring

import (
	"sync"
	"time"
)

// Metrics собирает счетчики пайплайна сбора данных
type Metrics struct {
	mu sync.RWMutex

	// Прогоны пайплайна
	RunsTotal  int64
	RunsErrors int64

	// Источники
	SourcesPolled int64
	SourceErrors  int64

	// Записи
	RecordsFetched  int64
	RecordsInserted int64
	RecordsUpdated  int64
	RecordsSkipped  int64
	RecordsRejected int64

	// HTTP-запросы к источникам
	FetchRequestsTotal  int64
	FetchRequestsErrors int64

	// Кэш ответов
	CacheHits   int64
	CacheMisses int64

	// База данных
	DBQueriesTotal  int64
	DBQueriesErrors int64

	// Время последнего обновления
	LastUpdate time.Time
	// Время завершения последнего прогона
	LastRunAt time.Time
}

var globalMetrics = &Metrics{
	LastUpdate: time.Now(),
}

// GetMetrics возвращает текущие метрики
func GetMetrics() *Metrics {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	// Возвращаем копию для безопасности
	return &Metrics{
		RunsTotal:           globalMetrics.RunsTotal,
		RunsErrors:          globalMetrics.RunsErrors,
		SourcesPolled:       globalMetrics.SourcesPolled,
		SourceErrors:        globalMetrics.SourceErrors,
		RecordsFetched:      globalMetrics.RecordsFetched,
		RecordsInserted:     globalMetrics.RecordsInserted,
		RecordsUpdated:      globalMetrics.RecordsUpdated,
		RecordsSkipped:      globalMetrics.RecordsSkipped,
		RecordsRejected:     globalMetrics.RecordsRejected,
		FetchRequestsTotal:  globalMetrics.FetchRequestsTotal,
		FetchRequestsErrors: globalMetrics.FetchRequestsErrors,
		CacheHits:           globalMetrics.CacheHits,
		CacheMisses:         globalMetrics.CacheMisses,
		DBQueriesTotal:      globalMetrics.DBQueriesTotal,
		DBQueriesErrors:     globalMetrics.DBQueriesErrors,
		LastUpdate:          globalMetrics.LastUpdate,
		LastRunAt:           globalMetrics.LastRunAt,
	}
}

func touch(update func(m *Metrics)) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	update(globalMetrics)
	globalMetrics.LastUpdate = time.Now()
}

// IncrementRuns увеличивает счетчик прогонов пайплайна
func IncrementRuns() {
	touch(func(m *Metrics) {
		m.RunsTotal++
		m.LastRunAt = time.Now()
	})
}

// IncrementRunsErrors увеличивает счетчик прогонов с ошибками
func IncrementRunsErrors() {
	touch(func(m *Metrics) { m.RunsErrors++ })
}

// IncrementSourcesPolled увеличивает счетчик опрошенных источников
func IncrementSourcesPolled() {
	touch(func(m *Metrics) { m.SourcesPolled++ })
}

// IncrementSourceErrors увеличивает счетчик ошибок источников
func IncrementSourceErrors() {
	touch(func(m *Metrics) { m.SourceErrors++ })
}

// AddRecordsFetched увеличивает счетчик полученных сырых записей
func AddRecordsFetched(n int) {
	touch(func(m *Metrics) { m.RecordsFetched += int64(n) })
}

// AddRecordsInserted увеличивает счетчик новых записей
func AddRecordsInserted(n int) {
	touch(func(m *Metrics) { m.RecordsInserted += int64(n) })
}

// AddRecordsUpdated увеличивает счетчик обновленных записей
func AddRecordsUpdated(n int) {
	touch(func(m *Metrics) { m.RecordsUpdated += int64(n) })
}

// AddRecordsSkipped увеличивает счетчик пропущенных дубликатов
func AddRecordsSkipped(n int) {
	touch(func(m *Metrics) { m.RecordsSkipped += int64(n) })
}

// AddRecordsRejected увеличивает счетчик отбракованных записей
func AddRecordsRejected(n int) {
	touch(func(m *Metrics) { m.RecordsRejected += int64(n) })
}

// IncrementFetchRequests увеличивает счетчик HTTP-запросов к источникам
func IncrementFetchRequests() {
	touch(func(m *Metrics) { m.FetchRequestsTotal++ })
}

// IncrementFetchRequestsErrors увеличивает счетчик неудачных HTTP-запросов
func IncrementFetchRequestsErrors() {
	touch(func(m *Metrics) { m.FetchRequestsErrors++ })
}

// IncrementCacheHits увеличивает счетчик попаданий в кэш
func IncrementCacheHits() {
	touch(func(m *Metrics) { m.CacheHits++ })
}

// IncrementCacheMisses увеличивает счетчик промахов кэша
func IncrementCacheMisses() {
	touch(func(m *Metrics) { m.CacheMisses++ })
}

// IncrementDBQueries увеличивает счетчик запросов к БД
func IncrementDBQueries() {
	touch(func(m *Metrics) { m.DBQueriesTotal++ })
}

// IncrementDBQueriesErrors увеличивает счетчик ошибок запросов к БД
func IncrementDBQueriesErrors() {
	touch(func(m *Metrics) { m.DBQueriesErrors++ })
}

// Reset сбрасывает все метрики
func Reset() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics = &Metrics{
		LastUpdate: time.Now(),
	}
}
