// Package forecast строит прогноз числа случаев по неделям. Базовая
// модель: скользящее среднее последних четырех недель. При достатке
// истории с ней соревнуется линейный регрессор, победитель выбирается
// по средней абсолютной ошибке на отложенном хвосте ряда. Прогноз
// никогда не возвращает ошибку вызывающему: в худшем случае это пустая
// последовательность и запись в журнале.
package forecast

import (
	"math"
	"time"

	"tick-monitor/aggregate"
	"tick-monitor/monitoring"
)

var forecastLogger = monitoring.NewLogger("Forecast")

// windowSize — ширина окна истории для одного шага прогноза.
const windowSize = 4

// Point — прогнозное значение на одну будущую неделю.
type Point struct {
	Date      time.Time `json:"-"`
	Cases     int       `json:"cases"`
	WeekIndex int       `json:"week_index"`
}

// Forecast продолжает недельный ряд на horizon недель вперед. Даты
// точек идут по понедельникам, первая ровно через неделю после
// последней исторической корзины.
func Forecast(buckets []aggregate.WeekBucket, horizon int) (points []Point) {
	defer func() {
		if r := recover(); r != nil {
			forecastLogger.Error("Паника при построении прогноза: %v", r)
			points = nil
		}
	}()

	if horizon <= 0 {
		return nil
	}
	if len(buckets) == 0 {
		forecastLogger.Warn("Прогноз невозможен: нет исторических корзин")
		return nil
	}

	series := sanitize(buckets)
	predicted := predictSeries(series, horizon)

	lastStart := buckets[len(buckets)-1].Start
	points = make([]Point, 0, len(predicted))
	for i, value := range predicted {
		cases := int(math.Round(value))
		if cases < 0 {
			cases = 0
		}
		points = append(points, Point{
			Date:      lastStart.AddDate(0, 0, 7*(i+1)),
			Cases:     cases,
			WeekIndex: i + 1,
		})
	}
	return points
}

// predictSeries выбирает модель и продолжает ряд на horizon значений.
func predictSeries(series []float64, horizon int) []float64 {
	model := selectModel(series)
	window := append([]float64(nil), series...)
	out := make([]float64, 0, horizon)
	for i := 0; i < horizon; i++ {
		value := model.next(window)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = 0
		}
		if value < 0 {
			value = 0
		}
		out = append(out, value)
		window = append(window, value)
	}
	return out
}

// sanitize переводит корзины в числовой ряд, вычищая NaN и
// бесконечности, которые ломают регрессию.
func sanitize(buckets []aggregate.WeekBucket) []float64 {
	series := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		v := float64(b.Cases)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		series = append(series, v)
	}
	return series
}

// meanLastN возвращает среднее последних n значений ряда, а при
// нехватке значений среднее всего ряда.
func meanLastN(series []float64, n int) float64 {
	if len(series) == 0 {
		return 0
	}
	if len(series) < n {
		n = len(series)
	}
	sum := 0.0
	for _, v := range series[len(series)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// MonthSummary — сводка прогноза по одному месяцу.
type MonthSummary struct {
	Month     string  `json:"month"`
	Total     int     `json:"total_cases"`
	AvgWeekly float64 `json:"avg_weekly"`
}

// YearForecast — прогноз на календарный год: недельные точки и
// помесячная сводка.
type YearForecast struct {
	Monthly []MonthSummary `json:"monthly"`
	Weekly  []Point        `json:"weekly"`
}

var ruMonthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// Границы истории и горизонта для прогноза 2026 года.
var (
	historyFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	yearEnd2026 = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
)

const minHistoryBuckets = 10

// Forecast2026 строит все недельные точки прогноза, попадающие в 2026
// год, и группирует их по месяцам с русскими названиями. История
// берется с 2024 года; если ее мало, используется весь ряд.
func Forecast2026(buckets []aggregate.WeekBucket) YearForecast {
	history := make([]aggregate.WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		if !b.Start.Before(historyFrom) {
			history = append(history, b)
		}
	}
	if len(history) < minHistoryBuckets {
		history = buckets
	}
	if len(history) == 0 {
		return YearForecast{}
	}

	lastStart := history[len(history)-1].Start
	firstFuture := lastStart.AddDate(0, 0, 7)
	if firstFuture.After(yearEnd2026) {
		return YearForecast{}
	}
	horizon := int(yearEnd2026.Sub(firstFuture).Hours()/(24*7)) + 1

	weekly := make([]Point, 0, 53)
	for _, p := range Forecast(history, horizon) {
		if p.Date.Year() == 2026 {
			weekly = append(weekly, p)
		}
	}

	type monthAgg struct {
		total int
		weeks int
	}
	months := make(map[time.Month]*monthAgg)
	for _, p := range weekly {
		m, ok := months[p.Date.Month()]
		if !ok {
			m = &monthAgg{}
			months[p.Date.Month()] = m
		}
		m.total += p.Cases
		m.weeks++
	}

	monthly := make([]MonthSummary, 0, len(months))
	for month := time.January; month <= time.December; month++ {
		agg, ok := months[month]
		if !ok {
			continue
		}
		avg := float64(agg.total) / float64(agg.weeks)
		monthly = append(monthly, MonthSummary{
			Month:     ruMonthNames[month-1],
			Total:     agg.total,
			AvgWeekly: math.Round(avg*10) / 10,
		})
	}

	return YearForecast{Monthly: monthly, Weekly: weekly}
}
