package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-monitor/cache"
	"tick-monitor/config"
	"tick-monitor/report"
	"tick-monitor/schedule"
	"tick-monitor/store"
)

func testConfig() *config.Config {
	off := false
	cfg := &config.Config{}
	cfg.Parsing.Sources.WebSearch.Enabled = &off
	cfg.Parsing.Sources.RSS.Enabled = &off
	cfg.Parsing.Sources.Telegram.Enabled = &off
	cfg.RiskLevels = config.RiskLevels{
		Low:      config.Threshold{Threshold: 50},
		Moderate: config.Threshold{Threshold: 100},
		High:     config.Threshold{Threshold: 150},
		VeryHigh: config.Threshold{Threshold: 999999},
	}
	cfg.Graph = config.Graph{WeeksToShow: 8, FilteredMaxItems: 1000}
	cfg.News.DaysBack = 30
	return cfg
}

func testHandlers(t *testing.T) *Handlers {
	t.Helper()

	st, err := store.Connect("file:" + filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.InitSchema(context.Background()))
	t.Cleanup(func() { st.Close() })

	cfg := testConfig()
	c := cache.NewMemory(time.Minute)
	sched := schedule.New(cfg, st, c)
	t.Cleanup(sched.Stop)

	return New(cfg, st, c, sched)
}

func seed(t *testing.T, h *Handlers, rec store.Record) {
	t.Helper()
	err := h.store.WithTx(context.Background(), func(tx *store.Tx) error {
		_, err := tx.Insert(context.Background(), rec)
		return err
	})
	require.NoError(t, err)
}

func doGet(t *testing.T, handler http.HandlerFunc, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestSendJSON(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		response       APIResponse
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "Success response",
			status: http.StatusOK,
			response: APIResponse{
				Success: true,
				Data:    map[string]string{"message": "ok"},
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"data":{"message":"ok"}}`,
		},
		{
			name:   "Error response",
			status: http.StatusBadRequest,
			response: APIResponse{
				Success: false,
				Error:   "validation failed",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"success":false,"error":"validation failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			sendJSON(w, tt.status, tt.response)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestStatsHandler(t *testing.T) {
	h := testHandlers(t)
	yesterday := store.FormatDate(time.Now().UTC().AddDate(0, 0, -1))
	seed(t, h, store.Record{
		Date:      yesterday,
		Cases:     73,
		RiskLevel: store.RiskModerate,
		Source:    "rospotrebnadzor-web",
		Title:     "Сводка за неделю",
	})

	w := doGet(t, h.StatsHandler(), "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool         `json:"success"`
		Data    report.Stats `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 73, resp.Data.CurrentWeek.Cases)
	assert.Equal(t, store.RiskModerate, resp.Data.CurrentWeek.RiskLevel)
}

func TestStatsHandler_CacheInvalidation(t *testing.T) {
	h := testHandlers(t)
	handler := h.StatsHandler()
	today := time.Now().UTC()

	seed(t, h, store.Record{
		Date:      store.FormatDate(today.AddDate(0, 0, -1)),
		Cases:     73,
		RiskLevel: store.RiskModerate,
		Source:    "rospotrebnadzor-web",
		Title:     "Старая сводка",
	})

	current := func() int {
		w := doGet(t, handler, "/api/stats")
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data report.Stats `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp.Data.CurrentWeek.Cases
	}

	assert.Equal(t, 73, current())

	seed(t, h, store.Record{
		Date:      store.FormatDate(today),
		Cases:     27,
		RiskLevel: store.RiskLow,
		Source:    "rospotrebnadzor-web",
		Title:     "Свежая сводка",
	})

	// Кэш еще хранит старый ответ
	assert.Equal(t, 73, current())

	h.cache.Clear(context.Background())
	assert.Equal(t, 27, current())
}

func TestSourcesHandler_Limit(t *testing.T) {
	h := testHandlers(t)
	for i, d := range []string{"2024-06-10", "2024-06-15", "2024-06-12"} {
		seed(t, h, store.Record{
			Date:   d,
			Cases:  i + 1,
			Source: "local-news",
			Title:  "Запись " + d,
		})
	}

	w := doGet(t, h.SourcesHandler(), "/api/sources?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool           `json:"success"`
		Data    report.Sources `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Sources, 2)
	assert.Equal(t, "15.06.2024", resp.Data.Sources[0].Date)
	assert.Equal(t, "12.06.2024", resp.Data.Sources[1].Date)
}

func TestGraphHandler(t *testing.T) {
	h := testHandlers(t)
	rows := []struct {
		date  string
		cases int
	}{
		{"2024-06-10", 10},
		{"2024-06-12", 5},
		{"2024-06-18", 7},
	}
	for _, r := range rows {
		seed(t, h, store.Record{Date: r.date, Cases: r.cases, Source: "local-news", Title: "Запись " + r.date})
	}

	w := doGet(t, h.GraphHandler(), "/api/graph")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool         `json:"success"`
		Data    report.Graph `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Weeks, 2)
	assert.Equal(t, []int{15, 7}, resp.Data.Cases)
	assert.Equal(t, []string{"#00c853", "#00c853"}, resp.Data.Colors)
}

func TestGraphHandler_InvalidDates(t *testing.T) {
	h := testHandlers(t)

	w := doGet(t, h.GraphHandler(), "/api/graph?start_date=abc&end_date=2024-06-15")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "некорректная дата начала")

	// Одиночный параметр не фильтрует, а игнорируется
	w = doGet(t, h.GraphHandler(), "/api/graph?start_date=2024-06-01")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMapDataHandler(t *testing.T) {
	h := testHandlers(t)
	seed(t, h, store.Record{
		Date:     "2024-06-10",
		Cases:    12,
		Location: "Тюмень",
		Source:   "local-news",
		Title:    "Укусы в городе",
	})
	seed(t, h, store.Record{
		Date:   "2024-06-11",
		Cases:  3,
		Source: "local-news",
		Title:  "Запись без географии",
	})

	w := doGet(t, h.MapDataHandler(), "/api/map-data")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool           `json:"success"`
		Data    report.MapData `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Locations, 1)
	assert.Equal(t, "Тюмень", resp.Data.Locations[0].Location)
	assert.Equal(t, 12, resp.Data.Locations[0].Cases)
	assert.Equal(t, "10.06.2024", resp.Data.Locations[0].Date)

	// Старые записи не попадают в недельный срез
	w = doGet(t, h.MapDataHandler(), "/api/map-data?view=week")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Data.Locations)
}

func TestForecast2026Handler_EmptyStore(t *testing.T) {
	h := testHandlers(t)

	w := doGet(t, h.Forecast2026Handler(), "/api/forecast-2026")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    report.Forecast2026 `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data.Monthly)
	assert.Empty(t, resp.Data.Weekly)
}

func TestNewsHandler(t *testing.T) {
	h := testHandlers(t)

	w := doGet(t, h.NewsHandler(), "/api/news")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    report.NewsFeed `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.Data.Count)
}

func TestAnalyticsCompareHandler(t *testing.T) {
	h := testHandlers(t)
	seed(t, h, store.Record{
		Date:   store.FormatDate(time.Now().UTC()),
		Cases:  24,
		Source: "rospotrebnadzor-web",
		Title:  "Сводка текущего года",
	})

	w := doGet(t, h.AnalyticsCompareHandler(), "/api/analytics/compare")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    report.AnalyticsCompare `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Data.Comparison, 4)
}

func TestUpdateHandler(t *testing.T) {
	h := testHandlers(t)
	handler := h.UpdateHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data["run_id"])
	assert.Equal(t, "Обновление данных запущено", resp.Data["message"])
}

func TestUpdateHandler_MethodNotAllowed(t *testing.T) {
	h := testHandlers(t)

	w := doGet(t, h.UpdateHandler(), "/api/update")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var resp APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Method not allowed")
}

func TestUpdateHandler_RateLimited(t *testing.T) {
	h := testHandlers(t)
	handler := h.UpdateHandler()

	for i := 0; i < updateRateLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Слишком много запросов")
}

func TestHealthHandler(t *testing.T) {
	h := testHandlers(t)

	w := doGet(t, h.HealthHandler(), "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Data["status"])
	assert.Equal(t, float64(0), resp.Data["records"])
	assert.Equal(t, false, resp.Data["scheduler_running"])
}

func TestRoutes(t *testing.T) {
	h := testHandlers(t)
	mux := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
