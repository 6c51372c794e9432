// Package report собирает данные для ответов API: сводки по неделям,
// график, карту, прогноз и новостную ленту. Пакет только читает
// хранилище и отдает готовые к сериализации структуры, даты в них
// отображаются в формате DD.MM.YYYY.
package report

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"tick-monitor/aggregate"
	"tick-monitor/config"
	"tick-monitor/forecast"
	"tick-monitor/news"
	"tick-monitor/store"
)

const displayDateLayout = "02.01.2006"

// WeekSummary — агрегат одной недели для блока статистики.
type WeekSummary struct {
	Cases     int    `json:"cases"`
	Date      string `json:"date"`
	RiskLevel string `json:"risk_level"`
}

// Stats — текущая и предыдущая недели.
type Stats struct {
	CurrentWeek  WeekSummary `json:"current_week"`
	PreviousWeek WeekSummary `json:"previous_week"`
}

// BuildStats возвращает сводки текущей и предыдущей недель.
func BuildStats(ctx context.Context, s *store.Store) (Stats, error) {
	current, err := s.GetWeek(ctx, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("ошибка получения текущей недели: %w", err)
	}
	previous, err := s.GetWeek(ctx, 1)
	if err != nil {
		return Stats{}, fmt.Errorf("ошибка получения предыдущей недели: %w", err)
	}
	return Stats{
		CurrentWeek:  weekSummary(current),
		PreviousWeek: weekSummary(previous),
	}, nil
}

func weekSummary(ws store.WeekStat) WeekSummary {
	date := ws.Date
	if day, err := store.ParseDate(ws.Date); err == nil {
		date = day.Format(displayDateLayout)
	}
	return WeekSummary{
		Cases:     ws.Cases,
		Date:      date,
		RiskLevel: ws.RiskLevel,
	}
}

// Sources — последние записи, свежие первыми.
type Sources struct {
	Sources []store.Record `json:"sources"`
}

const defaultSourcesLimit = 20

// BuildSources возвращает последние записи. Даты переводятся в
// отображаемый формат.
func BuildSources(ctx context.Context, s *store.Store, limit int) (Sources, error) {
	if limit <= 0 {
		limit = defaultSourcesLimit
	}
	records, err := s.QueryRecent(ctx, limit)
	if err != nil {
		return Sources{}, fmt.Errorf("ошибка получения последних записей: %w", err)
	}
	for i := range records {
		if day, err := store.ParseDate(records[i].Date); err == nil {
			records[i].Date = day.Format(displayDateLayout)
		}
	}
	if records == nil {
		records = []store.Record{}
	}
	return Sources{Sources: records}, nil
}

// Graph — подписи недель, суммы случаев и цвета столбцов.
type Graph struct {
	Weeks  []string `json:"weeks"`
	Cases  []int    `json:"cases"`
	Colors []string `json:"colors"`
}

// Цвета столбцов графика по уровню риска.
var riskColors = map[string]string{
	store.RiskLow:      "#00c853",
	store.RiskModerate: "#ffd600",
	store.RiskHigh:     "#ff6f00",
	store.RiskVeryHigh: "#d32f2f",
	store.RiskNone:     "#9e9e9e",
}

func colorFor(riskLevel string) string {
	if color, ok := riskColors[riskLevel]; ok {
		return color
	}
	return riskColors[store.RiskNone]
}

// BuildGraph группирует записи по неделям ISO и возвращает последние
// недели для графика. Пустые startDate и endDate означают весь ряд.
func BuildGraph(ctx context.Context, s *store.Store, cfg *config.Config, startDate, endDate string) (Graph, error) {
	var (
		records []store.Record
		err     error
	)
	filtered := startDate != "" && endDate != ""
	if filtered {
		if _, perr := store.ParseDate(startDate); perr != nil {
			return Graph{}, fmt.Errorf("некорректная дата начала %q: %w", startDate, perr)
		}
		if _, perr := store.ParseDate(endDate); perr != nil {
			return Graph{}, fmt.Errorf("некорректная дата конца %q: %w", endDate, perr)
		}
		records, err = s.QueryRange(ctx, startDate, endDate)
	} else {
		records, err = s.All(ctx)
	}
	if err != nil {
		return Graph{}, fmt.Errorf("ошибка чтения записей для графика: %w", err)
	}
	if filtered && cfg.Graph.FilteredMaxItems > 0 && len(records) > cfg.Graph.FilteredMaxItems {
		records = records[:cfg.Graph.FilteredMaxItems]
	}

	buckets := aggregate.Fold(records, cfg.RiskLevels)
	weeksToShow := cfg.Graph.WeeksToShow
	if weeksToShow <= 0 {
		weeksToShow = 8
	}
	if len(buckets) > weeksToShow {
		buckets = buckets[len(buckets)-weeksToShow:]
	}

	graph := Graph{
		Weeks:  make([]string, 0, len(buckets)),
		Cases:  make([]int, 0, len(buckets)),
		Colors: make([]string, 0, len(buckets)),
	}
	for _, b := range buckets {
		graph.Weeks = append(graph.Weeks, b.Label())
		graph.Cases = append(graph.Cases, b.Cases)
		graph.Colors = append(graph.Colors, colorFor(b.RiskLevel))
	}
	return graph, nil
}

// MapData — точки карты активности.
type MapData struct {
	Locations []MapPoint `json:"locations"`
}

// MapPoint — одна точка на карте области.
type MapPoint struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Location string  `json:"location"`
	Cases    int     `json:"cases"`
	Date     string  `json:"date"`
	Source   string  `json:"source"`
	Title    string  `json:"title"`
}

const mapTitleLimit = 50

// BuildMap возвращает точки карты. view сужает период: week —
// последние 7 дней, month — последние 30, все остальное — вся история.
// Записи без населенного пункта на карту не попадают.
func BuildMap(ctx context.Context, s *store.Store, view string) (MapData, error) {
	var (
		records []store.Record
		err     error
	)
	today := time.Now().UTC()
	switch view {
	case "week":
		records, err = s.QueryRange(ctx, store.FormatDate(today.AddDate(0, 0, -7)), store.FormatDate(today))
	case "month":
		records, err = s.QueryRange(ctx, store.FormatDate(today.AddDate(0, 0, -30)), store.FormatDate(today))
	default:
		records, err = s.All(ctx)
	}
	if err != nil {
		return MapData{}, fmt.Errorf("ошибка чтения записей для карты: %w", err)
	}

	points := make([]MapPoint, 0, len(records))
	for _, rec := range records {
		if rec.Location == "" {
			continue
		}
		lat, lng := Coordinates(rec.Location)
		date := rec.Date
		if day, perr := store.ParseDate(rec.Date); perr == nil {
			date = day.Format(displayDateLayout)
		}
		points = append(points, MapPoint{
			Lat:      lat,
			Lng:      lng,
			Location: rec.Location,
			Cases:    rec.Cases,
			Date:     date,
			Source:   rec.Source,
			Title:    truncateRunes(rec.Title, mapTitleLimit),
		})
	}
	return MapData{Locations: points}, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// ForecastWeek — недельная точка прогноза в отображаемом формате.
type ForecastWeek struct {
	Date      string `json:"date"`
	Cases     int    `json:"cases"`
	WeekIndex int    `json:"week_index"`
}

// Forecast2026 — прогноз на 2026 год для API.
type Forecast2026 struct {
	Monthly []forecast.MonthSummary `json:"monthly"`
	Weekly  []ForecastWeek          `json:"weekly"`
}

// BuildForecast2026 агрегирует всю историю и строит прогноз на 2026
// год.
func BuildForecast2026(ctx context.Context, s *store.Store, cfg *config.Config) (Forecast2026, error) {
	buckets, err := aggregate.FromStore(ctx, s, cfg.RiskLevels)
	if err != nil {
		return Forecast2026{}, fmt.Errorf("ошибка агрегации истории для прогноза: %w", err)
	}

	yf := forecast.Forecast2026(buckets)
	out := Forecast2026{
		Monthly: yf.Monthly,
		Weekly:  make([]ForecastWeek, 0, len(yf.Weekly)),
	}
	if out.Monthly == nil {
		out.Monthly = []forecast.MonthSummary{}
	}
	for _, p := range yf.Weekly {
		out.Weekly = append(out.Weekly, ForecastWeek{
			Date:      p.Date.Format(displayDateLayout),
			Cases:     p.Cases,
			WeekIndex: p.WeekIndex,
		})
	}
	return out, nil
}

// NewsFeed — лента заметок и их количество.
type NewsFeed struct {
	News  []news.Item `json:"news"`
	Count int         `json:"count"`
}

// BuildNewsFeed строит новостную ленту за окно daysBack.
func BuildNewsFeed(ctx context.Context, s *store.Store, daysBack int) (NewsFeed, error) {
	items, err := news.FromStore(ctx, s, daysBack)
	if err != nil {
		return NewsFeed{}, err
	}
	if items == nil {
		items = []news.Item{}
	}
	return NewsFeed{News: items, Count: len(items)}, nil
}

// Analytics — сводные показатели хранилища.
type Analytics struct {
	TotalRecords int64            `json:"total_records"`
	BySource     map[string]int64 `json:"by_source"`
	LastUpdated  string           `json:"last_updated,omitempty"`
}

// BuildAnalytics возвращает общее число записей, разбивку по
// источникам и время последнего обновления.
func BuildAnalytics(ctx context.Context, s *store.Store) (Analytics, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("ошибка подсчета записей: %w", err)
	}
	bySource, err := s.CountBySource(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("ошибка подсчета по источникам: %w", err)
	}
	lastUpdated, err := s.LastUpdated(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("ошибка получения времени обновления: %w", err)
	}

	a := Analytics{TotalRecords: total, BySource: bySource}
	if !lastUpdated.IsZero() {
		a.LastUpdated = lastUpdated.Format("02.01.2006 15:04")
	}
	return a, nil
}

// YearComparison — итоги одного календарного года.
type YearComparison struct {
	TotalCases   int     `json:"total_cases"`
	RecordsCount int     `json:"records_count"`
	AvgPerMonth  float64 `json:"avg_per_month"`
}

// AnalyticsCompare — сравнение активности по годам.
type AnalyticsCompare struct {
	Comparison map[string]YearComparison `json:"comparison"`
}

const compareYears = 4

// BuildAnalyticsCompare сравнивает последние четыре календарных года:
// сумма случаев, число записей и среднее число случаев в месяц.
// Годы без записей присутствуют в ответе с нулями.
func BuildAnalyticsCompare(ctx context.Context, s *store.Store) (AnalyticsCompare, error) {
	out := AnalyticsCompare{Comparison: make(map[string]YearComparison, compareYears)}
	year := time.Now().UTC().Year()
	for y := year - compareYears + 1; y <= year; y++ {
		records, err := s.QueryRange(ctx, fmt.Sprintf("%d-01-01", y), fmt.Sprintf("%d-12-31", y))
		if err != nil {
			return AnalyticsCompare{}, fmt.Errorf("ошибка чтения записей за %d год: %w", y, err)
		}
		total := 0
		for _, rec := range records {
			total += rec.Cases
		}
		out.Comparison[strconv.Itoa(y)] = YearComparison{
			TotalCases:   total,
			RecordsCount: len(records),
			AvgPerMonth:  math.Round(float64(total)/12*10) / 10,
		}
	}
	return out, nil
}
