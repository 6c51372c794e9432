// Package schedule управляет конвейером обновления данных: источники
// опрашиваются параллельно, записи проходят нормализацию, валидацию и
// дедупликацию через один последовательный обработчик, по одной
// транзакции на источник. Запуски не накладываются друг на друга:
// пришедшийся на идущий прогон запуск пропускается.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tick-monitor/aggregate"
	"tick-monitor/cache"
	"tick-monitor/config"
	"tick-monitor/dedup"
	"tick-monitor/extract"
	"tick-monitor/facts"
	"tick-monitor/fetch"
	"tick-monitor/forecast"
	"tick-monitor/monitoring"
	"tick-monitor/store"
	"tick-monitor/validate"

	"github.com/google/uuid"
)

var schedLogger = monitoring.NewLogger("Scheduler")

const (
	// Бюджет времени одного источника за прогон.
	sourceTimeout = 5 * time.Minute
	// Ожидание завершения текущего прогона при остановке.
	stopTimeout = 30 * time.Second
	// Бюджет фонового пересчета прогноза после прогона.
	forecastTimeout = 60 * time.Second
)

// Scheduler запускает прогоны конвейера по расписанию и по запросу.
type Scheduler struct {
	cfg     *config.Config
	sources []extract.Source
	client  *fetch.Client
	store   *store.Store
	cache   cache.Backend
	slog    *monitoring.StructuredLogger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	running  bool
	stopping bool
	runID    string
}

// New собирает планировщик над включенными источниками конфигурации.
func New(cfg *config.Config, st *store.Store, c cache.Backend) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		sources: extract.FromConfig(cfg.Parsing.Sources),
		client:  fetch.NewClient(cfg.Parsing),
		store:   st,
		cache:   c,
		slog:    monitoring.GetLogger("scheduler"),
		baseCtx: context.Background(),
		cancel:  func() {},
	}
}

// Sources возвращает имена включенных источников в порядке опроса.
func (s *Scheduler) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	return names
}

// Running сообщает, идет ли прогон конвейера прямо сейчас.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start запускает цикл обновления. Первый прогон выполняется сразу,
// дальше по интервалу из конфигурации.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.baseCtx = ctx
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop останавливает планировщик и ждет завершения текущего прогона,
// но не дольше 30 секунд.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		schedLogger.Info("Планировщик остановлен")
	case <-time.After(stopTimeout):
		schedLogger.Warn("Прогон не завершился за %v, остановка продолжается без ожидания", stopTimeout)
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Parsing.AutoUpdateIntervalMinutes) * time.Minute
	schedLogger.Info("Запуск планировщика с интервалом %v, источников: %d", interval, len(s.sources))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runScheduled(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(ctx)
			// Тик, пришедший во время затянувшегося прогона, не
			// должен запускать второй прогон подряд
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	runID, ok := s.begin()
	if !ok {
		schedLogger.Debug("Прогон %s еще идет, плановый запуск пропущен", runID)
		return
	}
	s.execute(ctx, runID, "по расписанию")
}

// TriggerUpdate запускает внеочередной прогон в фоне. Если прогон уже
// идет, возвращает его идентификатор и started=false: второй прогон
// не ставится в очередь.
func (s *Scheduler) TriggerUpdate() (runID string, started bool) {
	runID, ok := s.begin()
	if !ok {
		return runID, false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.baseCtx, runID, "по запросу")
	}()
	return runID, true
}

// begin занимает слот прогона. Возвращает идентификатор идущего
// прогона и false, если слот занят или планировщик останавливается.
func (s *Scheduler) begin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopping {
		return s.runID, false
	}
	s.running = true
	s.runID = uuid.NewString()
	return s.runID, true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Summary — итог одного прогона конвейера.
type Summary struct {
	Fetched  int
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
	Errors   int
}

func (s *Scheduler) execute(ctx context.Context, runID, reason string) {
	defer s.end()
	defer func() {
		if r := recover(); r != nil {
			monitoring.IncrementRunsErrors()
			schedLogger.Error("Паника в прогоне %s: %v", runID, r)
		}
	}()

	start := time.Now()
	monitoring.IncrementRuns()
	schedLogger.Info("Обновление данных запущено (%s), прогон %s", reason, runID)

	sum := s.collectAndProcess(ctx, runID)

	s.slog.LogPipelineRun(runID, time.Since(start).Milliseconds(),
		sum.Inserted, sum.Updated, sum.Skipped, sum.Rejected, sum.Errors)
	schedLogger.Info("Обновление завершено за %v. Сохранено %d новых записей, обновлено %d существующих, ошибок: %d",
		time.Since(start).Round(time.Millisecond), sum.Inserted, sum.Updated, sum.Errors)

	if ctx.Err() != nil {
		return
	}
	// Читатели не должны видеть несвежие агрегаты после прогона
	s.cache.Clear(ctx)
	s.refreshForecast(runID)
}

// batch — результат опроса одного источника.
type batch struct {
	source  string
	records []facts.RawRecord
	err     error
}

// collectAndProcess опрашивает источники параллельно и обрабатывает
// их результаты последовательно, не дожидаясь остальных.
func (s *Scheduler) collectAndProcess(ctx context.Context, runID string) Summary {
	batches := make(chan batch)

	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src extract.Source) {
			defer wg.Done()
			batches <- s.fetchSource(ctx, src)
		}(src)
	}
	go func() {
		wg.Wait()
		close(batches)
	}()

	var sum Summary
	deduper := dedup.New()
	for b := range batches {
		if b.err != nil {
			sum.Errors++
			monitoring.IncrementSourceErrors()
			schedLogger.Error("Ошибка источника %s: %v", b.source, b.err)
		}
		// Частичный результат источника обрабатывается как обычный
		s.processBatch(ctx, deduper, b, &sum)
	}

	schedLogger.Info("Прогон %s: получено %d записей из %d источников", runID, sum.Fetched, len(s.sources))
	return sum
}

// fetchSource опрашивает один источник под защитой от паник и с
// собственным таймаутом.
func (s *Scheduler) fetchSource(ctx context.Context, src extract.Source) (b batch) {
	b.source = src.Name()
	defer func() {
		if r := recover(); r != nil {
			b.err = fmt.Errorf("паника в источнике %s: %v", b.source, r)
		}
	}()

	srcCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	monitoring.IncrementSourcesPolled()
	started := time.Now()
	b.records, b.err = src.Fetch(srcCtx, s.client)
	schedLogger.Info("Источник %s: %d записей за %v",
		b.source, len(b.records), time.Since(started).Round(time.Millisecond))
	return b
}

// processBatch проводит записи источника через нормализацию, проверку
// и дедупликацию в одной транзакции. Ошибка транзакции откатывает
// источник целиком, не трогая остальные.
func (s *Scheduler) processBatch(ctx context.Context, deduper *dedup.Deduper, b batch, sum *Summary) {
	sum.Fetched += len(b.records)
	monitoring.AddRecordsFetched(len(b.records))
	if len(b.records) == 0 {
		return
	}

	var inserted, updated, skipped, rejected int
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, raw := range b.records {
			rec, err := facts.Normalize(raw, s.cfg.RiskLevels)
			if err != nil {
				rejected++
				schedLogger.Debug("Запись источника %s отклонена: %v", b.source, err)
				continue
			}
			if err := validate.Check(rec); err != nil {
				rejected++
				reason, _ := validate.ReasonOf(err)
				schedLogger.Debug("Запись источника %s отклонена (%s): %v", b.source, reason, err)
				continue
			}

			action, err := deduper.Apply(ctx, tx, rec)
			if err != nil {
				return err
			}
			switch action {
			case dedup.ActionInserted:
				inserted++
			case dedup.ActionUpdated:
				updated++
			case dedup.ActionSkipped:
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		sum.Errors++
		monitoring.IncrementSourceErrors()
		schedLogger.Error("Ошибка сохранения записей источника %s: %v", b.source, err)
		return
	}

	sum.Inserted += inserted
	sum.Updated += updated
	sum.Skipped += skipped
	sum.Rejected += rejected
	monitoring.AddRecordsInserted(inserted)
	monitoring.AddRecordsUpdated(updated)
	monitoring.AddRecordsSkipped(skipped)
	monitoring.AddRecordsRejected(rejected)
}

// refreshForecast пересчитывает прогноз в фоне после прогона, чтобы
// первый запрос к API не платил за пересчет. Паника или таймаут
// пересчета не влияют на планировщик.
func (s *Scheduler) refreshForecast(runID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				schedLogger.Error("Паника при пересчете прогноза: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(s.baseCtx, forecastTimeout)
		defer cancel()

		buckets, err := aggregate.FromStore(ctx, s.store, s.cfg.RiskLevels)
		if err != nil {
			schedLogger.Warn("Не удалось пересчитать прогноз после прогона %s: %v", runID, err)
			return
		}
		yf := forecast.Forecast2026(buckets)
		total := 0
		for _, m := range yf.Monthly {
			total += m.Total
		}
		schedLogger.Info("Прогноз на 2026 год пересчитан: %d недельных точек, всего %d случаев", len(yf.Weekly), total)
	}()
}
