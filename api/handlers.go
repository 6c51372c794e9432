// Package api отдает данные мониторинга активности клещей по HTTP.
// Обработчики тонкие: payload собирает пакет report, готовые JSON
// ответы GET-запросов живут в кэше до следующего прогона конвейера.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tick-monitor/cache"
	"tick-monitor/config"
	"tick-monitor/middleware"
	"tick-monitor/monitoring"
	"tick-monitor/report"
	"tick-monitor/schedule"
	"tick-monitor/store"
)

// APIResponse представляет стандартный ответ API
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Запусков обновления с одного IP в минуту.
const updateRateLimit = 10

// Handlers объединяет зависимости HTTP-обработчиков.
type Handlers struct {
	cfg     *config.Config
	store   *store.Store
	cache   cache.Backend
	sched   *schedule.Scheduler
	limiter *middleware.APIRateLimiter
}

// New создает набор обработчиков поверх хранилища, кэша и планировщика.
func New(cfg *config.Config, st *store.Store, c cache.Backend, sched *schedule.Scheduler) *Handlers {
	return &Handlers{
		cfg:     cfg,
		store:   st,
		cache:   c,
		sched:   sched,
		limiter: middleware.NewAPIRateLimiter(updateRateLimit, time.Minute),
	}
}

// Routes возвращает маршрутизатор со всеми эндпоинтами API.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", h.StatsHandler())
	mux.HandleFunc("/api/sources", h.SourcesHandler())
	mux.HandleFunc("/api/graph", h.GraphHandler())
	mux.HandleFunc("/api/map-data", h.MapDataHandler())
	mux.HandleFunc("/api/forecast-2026", h.Forecast2026Handler())
	mux.HandleFunc("/api/news", h.NewsHandler())
	mux.HandleFunc("/api/analytics", h.AnalyticsHandler())
	mux.HandleFunc("/api/analytics/compare", h.AnalyticsCompareHandler())
	mux.HandleFunc("/api/update", h.UpdateHandler())
	mux.HandleFunc("/api/health", h.HealthHandler())
	return mux
}

// sendJSON отправляет JSON ответ
func sendJSON(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response) // Ignore error after headers sent
}

func writeBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// serveCached отдает ответ из кэша или собирает его через build и
// кэширует готовый JSON. Ключ различает запросы по строке параметров,
// ошибочные ответы не кэшируются.
func (h *Handlers) serveCached(w http.ResponseWriter, r *http.Request, key, errLabel string, build func(ctx context.Context) (interface{}, error)) {
	if q := r.URL.RawQuery; q != "" {
		key += "?" + q
	}
	if body, ok := h.cache.Get(r.Context(), key); ok {
		writeBody(w, body)
		return
	}

	data, err := build(r.Context())
	if err != nil {
		monitoring.GetLogger("api").Error(errLabel, "error", err)
		sendJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   errLabel,
		})
		return
	}

	body, err := json.Marshal(APIResponse{Success: true, Data: data})
	if err != nil {
		monitoring.GetLogger("api").Error(errLabel, "error", err)
		sendJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   errLabel,
		})
		return
	}
	h.cache.Set(r.Context(), key, body)
	writeBody(w, body)
}

// StatsHandler возвращает сводки текущей и предыдущей недель.
func (h *Handlers) StatsHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		h.serveCached(w, r, "api:stats", "Failed to build stats", func(ctx context.Context) (interface{}, error) {
			return report.BuildStats(ctx, h.store)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(10*time.Second))
}

// SourcesHandler возвращает последние записи, свежие первыми.
func (h *Handlers) SourcesHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		h.serveCached(w, r, "api:sources", "Failed to build sources", func(ctx context.Context) (interface{}, error) {
			return report.BuildSources(ctx, h.store, limit)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// GraphHandler возвращает данные для графика по неделям. Диапазон
// задается параметрами start_date и end_date в формате YYYY-MM-DD,
// действует только пара целиком.
func (h *Handlers) GraphHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		startDate := r.URL.Query().Get("start_date")
		endDate := r.URL.Query().Get("end_date")
		if startDate != "" && endDate != "" {
			if _, err := store.ParseDate(startDate); err != nil {
				sendJSON(w, http.StatusBadRequest, APIResponse{
					Success: false,
					Error:   "некорректная дата начала: " + startDate,
				})
				return
			}
			if _, err := store.ParseDate(endDate); err != nil {
				sendJSON(w, http.StatusBadRequest, APIResponse{
					Success: false,
					Error:   "некорректная дата конца: " + endDate,
				})
				return
			}
		}
		h.serveCached(w, r, "api:graph", "Failed to build graph", func(ctx context.Context) (interface{}, error) {
			return report.BuildGraph(ctx, h.store, h.cfg, startDate, endDate)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// MapDataHandler возвращает точки карты. Параметр view сужает период:
// week, month или all.
func (h *Handlers) MapDataHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		view := r.URL.Query().Get("view")
		if view == "" {
			view = "all"
		}
		h.serveCached(w, r, "api:map", "Failed to build map data", func(ctx context.Context) (interface{}, error) {
			return report.BuildMap(ctx, h.store, view)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// Forecast2026Handler возвращает прогноз активности на 2026 год.
func (h *Handlers) Forecast2026Handler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		h.serveCached(w, r, "api:forecast-2026", "Failed to build forecast", func(ctx context.Context) (interface{}, error) {
			return report.BuildForecast2026(ctx, h.store, h.cfg)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// NewsHandler возвращает новостную ленту. Параметр days переопределяет
// окно анализа из конфигурации.
func (h *Handlers) NewsHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		days := h.cfg.News.DaysBack
		if v := r.URL.Query().Get("days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				days = n
			}
		}
		h.serveCached(w, r, "api:news", "Failed to build news feed", func(ctx context.Context) (interface{}, error) {
			return report.BuildNewsFeed(ctx, h.store, days)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// AnalyticsHandler возвращает сводные показатели хранилища.
func (h *Handlers) AnalyticsHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		h.serveCached(w, r, "api:analytics", "Failed to build analytics", func(ctx context.Context) (interface{}, error) {
			return report.BuildAnalytics(ctx, h.store)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// AnalyticsCompareHandler возвращает сравнение последних четырех лет.
func (h *Handlers) AnalyticsCompareHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		h.serveCached(w, r, "api:analytics-compare", "Failed to build comparison", func(ctx context.Context) (interface{}, error) {
			return report.BuildAnalyticsCompare(ctx, h.store)
		})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(30*time.Second))
}

// UpdateHandler запускает внеочередное обновление данных. Если прогон
// уже идет, возвращается его идентификатор без запуска нового.
func (h *Handlers) UpdateHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
				Success: false,
				Error:   "Method not allowed",
			})
			return
		}

		runID, started := h.sched.TriggerUpdate()
		message := "Обновление данных запущено"
		if !started {
			message = "Обновление уже выполняется"
		}
		sendJSON(w, http.StatusOK, APIResponse{
			Success: true,
			Data: map[string]interface{}{
				"run_id":  runID,
				"started": started,
				"message": message,
			},
		})
	}, h.limiter.RateLimit, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(10*time.Second))
}

// HealthHandler возвращает состояние сервиса и счетчики конвейера.
func (h *Handlers) HealthHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		count, err := h.store.Count(r.Context())
		if err != nil {
			monitoring.GetLogger("api").Error("Health check failed", "error", err)
			sendJSON(w, http.StatusInternalServerError, APIResponse{
				Success: false,
				Error:   "Database unavailable",
			})
			return
		}

		m := monitoring.GetMetrics()
		data := map[string]interface{}{
			"status":            "ok",
			"records":           count,
			"scheduler_running": h.sched.Running(),
			"sources":           h.sched.Sources(),
			"runs_total":        m.RunsTotal,
			"runs_errors":       m.RunsErrors,
			"records_inserted":  m.RecordsInserted,
			"records_rejected":  m.RecordsRejected,
		}
		if !m.LastRunAt.IsZero() {
			data["last_run_at"] = m.LastRunAt.Format("02.01.2006 15:04:05")
		}
		sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(10*time.Second))
}
