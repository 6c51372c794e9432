package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"
)

const defaultMedicalMaxItems = 100

// Глубина выгрузки статистики из медицинского API.
const medicalLookback = 365 * 24 * time.Hour

// MedicalAPI забирает готовую статистику обращений из API медицинских
// учреждений. Источник требует адрес и токен, поэтому по умолчанию
// выключен.
type MedicalAPI struct {
	apiURL   string
	apiKey   string
	maxItems int
	breaker  *fetch.CircuitBreaker
	http     *http.Client
}

func NewMedicalAPI(cfg config.Source) *MedicalAPI {
	key := os.Getenv("MEDICAL_API_KEY")
	if key == "" {
		key = cfg.APIKey
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMedicalMaxItems
	}
	return &MedicalAPI{
		apiURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:   key,
		maxItems: maxItems,
		breaker:  fetch.ForSource("medical-api"),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *MedicalAPI) Name() string { return "API медицинских учреждений" }

// Формат ответа /api/tick-statistics.
type medicalStatsResponse struct {
	Results []medicalStatsItem `json:"results"`
}

type medicalStatsItem struct {
	Date        string `json:"date"`
	Cases       int    `json:"cases"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Location    string `json:"location"`
}

func (m *MedicalAPI) Fetch(ctx context.Context, _ *fetch.Client) ([]facts.RawRecord, error) {
	now := time.Now()
	params := url.Values{}
	params.Set("start_date", now.Add(-medicalLookback).Format("2006-01-02"))
	params.Set("end_date", now.Format("2006-01-02"))
	endpoint := m.apiURL + "/api/tick-statistics?" + params.Encode()

	var payload medicalStatsResponse
	err := m.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("ошибка создания запроса: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.http.Do(req)
		if err != nil {
			return fmt.Errorf("ошибка при запросе к API медицинских учреждений: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ошибка API медицинских учреждений: %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("ошибка разбора ответа API: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var records []facts.RawRecord
	for i, item := range payload.Results {
		if i >= m.maxItems {
			break
		}
		title := truncateRunes(strings.TrimSpace(item.Title), 200)
		if title == "" {
			title = defaultTitle
		}
		records = append(records, facts.RawRecord{
			RawText:       medicalSummary(item),
			Title:         title,
			CandidateDate: item.Date,
			URL:           item.URL,
			SourceTag:     m.Name(),
		})
	}

	extractLogger.Info("Получено %d записей из API медицинских учреждений", len(records))
	return records, nil
}

// medicalSummary дополняет описание строками с числом обращений и
// районом: дальше по конвейеру факты извлекаются только из текста.
func medicalSummary(item medicalStatsItem) string {
	parts := []string{strings.TrimSpace(item.Description)}
	if item.Cases > 0 {
		parts = append(parts, fmt.Sprintf("За период зарегистрировано %d обращений по поводу укусов клещей.", item.Cases))
	}
	if item.Location != "" {
		parts = append(parts, "Район: "+item.Location+".")
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
