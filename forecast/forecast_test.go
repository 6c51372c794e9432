package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-monitor/aggregate"
)

// makeBuckets строит недельные корзины с понедельника start.
func makeBuckets(start time.Time, cases ...int) []aggregate.WeekBucket {
	buckets := make([]aggregate.WeekBucket, 0, len(cases))
	for i, c := range cases {
		weekStart := start.AddDate(0, 0, 7*i)
		year, week := weekStart.ISOWeek()
		buckets = append(buckets, aggregate.WeekBucket{
			Year:  year,
			Week:  week,
			Start: weekStart,
			End:   weekStart.AddDate(0, 0, 6),
			Cases: c,
			Count: 1,
		})
	}
	return buckets
}

func constantSeries(n, value int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestForecastYearAhead(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	buckets := makeBuckets(start, constantSeries(20, 40)...)

	points := Forecast(buckets, 52)
	require.Len(t, points, 52)

	lastStart := buckets[len(buckets)-1].Start
	for i, p := range points {
		if p.Cases < 0 {
			t.Errorf("Точка %d: отрицательный прогноз %d", i, p.Cases)
		}
		wantDate := lastStart.AddDate(0, 0, 7*(i+1))
		if !p.Date.Equal(wantDate) {
			t.Errorf("Точка %d: ожидалась дата %s, получено %s", i, wantDate.Format("2006-01-02"), p.Date.Format("2006-01-02"))
		}
		assert.Equal(t, i+1, p.WeekIndex)
	}

	// Постоянный ряд продолжается тем же значением.
	for _, p := range points {
		assert.Equal(t, 40, p.Cases)
	}

	firstWant := lastStart.AddDate(0, 0, 7)
	assert.True(t, points[0].Date.Equal(firstWant), "Первая прогнозная дата должна идти через неделю после последней корзины")
}

func TestForecastEmptyHistory(t *testing.T) {
	assert.Empty(t, Forecast(nil, 10))
	assert.Empty(t, Forecast([]aggregate.WeekBucket{}, 10))
}

func TestForecastNonPositiveHorizon(t *testing.T) {
	buckets := makeBuckets(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), 10, 20)
	assert.Empty(t, Forecast(buckets, 0))
	assert.Empty(t, Forecast(buckets, -5))
}

func TestForecastShortHistory(t *testing.T) {
	buckets := makeBuckets(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), 10, 20)

	points := Forecast(buckets, 3)
	require.Len(t, points, 3)

	// Среднее двух недель 15, дальше ряд стабилизируется.
	assert.Equal(t, 15, points[0].Cases)
	assert.Equal(t, 15, points[1].Cases)
	assert.Equal(t, 15, points[2].Cases)
}

func TestForecastAllZeros(t *testing.T) {
	buckets := makeBuckets(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), constantSeries(12, 0)...)

	points := Forecast(buckets, 8)
	require.Len(t, points, 8)
	for _, p := range points {
		assert.Equal(t, 0, p.Cases)
	}
}

func TestForecastDeclineStaysNonNegative(t *testing.T) {
	buckets := makeBuckets(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		120, 95, 70, 48, 30, 18, 9, 4, 2, 1, 0, 0)

	points := Forecast(buckets, 26)
	require.Len(t, points, 26)
	for i, p := range points {
		if p.Cases < 0 {
			t.Errorf("Точка %d: прогноз %d меньше нуля", i, p.Cases)
		}
	}
}

func TestSelectModelShortSeries(t *testing.T) {
	series := []float64{5, 7, 6, 8, 9, 7, 6}
	_, ok := selectModel(series).(baselineModel)
	assert.True(t, ok, "На коротком ряде должна оставаться базовая модель")
}

func TestSelectModelDegenerateSeries(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 40
	}
	_, ok := selectModel(series).(baselineModel)
	assert.True(t, ok, "На вырожденном ряде регрессор не обучается")
}

func TestHoldoutMAE(t *testing.T) {
	series := []float64{10, 10, 10, 10, 10, 20}
	mae := holdoutMAE(baselineModel{}, series, 2)
	assert.InDelta(t, 5.0, mae, 1e-9)
}

func TestFitRegressorOnVariedSeries(t *testing.T) {
	series := []float64{12, 5, 30, 8, 22, 17, 3, 28, 14, 9, 25, 6, 19, 31, 11, 7}

	reg, ok := fitRegressor(series)
	require.True(t, ok, "На разнообразном ряде регрессор должен обучиться")

	pred := reg.next(series)
	assert.False(t, math.IsNaN(pred))
	assert.False(t, math.IsInf(pred, 0))
}

func TestSolveLinearSystem(t *testing.T) {
	want := [windowSize + 1]float64{1, -2, 3, 0.5, -1.5}
	var a [windowSize + 1][windowSize + 1]float64
	for i := 0; i < windowSize+1; i++ {
		a[i][i] = float64(i + 2)
		if i+1 < windowSize+1 {
			a[i][i+1] = 1
		}
	}
	var b [windowSize + 1]float64
	for i := 0; i < windowSize+1; i++ {
		for j := 0; j < windowSize+1; j++ {
			b[i] += a[i][j] * want[j]
		}
	}

	got, ok := solveLinearSystem(a, b)
	require.True(t, ok)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestSolveLinearSystemSingular(t *testing.T) {
	var a [windowSize + 1][windowSize + 1]float64
	var b [windowSize + 1]float64
	b[0] = 1

	_, ok := solveLinearSystem(a, b)
	assert.False(t, ok)
}

func TestForecast2026FullYear(t *testing.T) {
	start := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	buckets := makeBuckets(start, constantSeries(12, 40)...)

	yf := Forecast2026(buckets)
	require.Len(t, yf.Weekly, 52)

	for _, p := range yf.Weekly {
		if p.Date.Year() != 2026 {
			t.Errorf("Точка %s вне 2026 года", p.Date.Format("2006-01-02"))
		}
	}
	assert.True(t, yf.Weekly[0].Date.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)))

	require.Len(t, yf.Monthly, 12)
	assert.Equal(t, "Январь", yf.Monthly[0].Month)
	assert.Equal(t, "Декабрь", yf.Monthly[11].Month)

	// Январь 2026: четыре понедельника по 40 случаев.
	assert.Equal(t, 160, yf.Monthly[0].Total)
	assert.InDelta(t, 40.0, yf.Monthly[0].AvgWeekly, 1e-9)

	weeklySum := 0
	for _, p := range yf.Weekly {
		weeklySum += p.Cases
	}
	monthlySum := 0
	for _, m := range yf.Monthly {
		monthlySum += m.Total
	}
	if weeklySum != monthlySum {
		t.Errorf("Суммы расходятся: по неделям %d, по месяцам %d", weeklySum, monthlySum)
	}
}

func TestForecast2026OldSparseHistory(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	buckets := makeBuckets(start, 10, 14, 12)

	yf := Forecast2026(buckets)
	require.NotEmpty(t, yf.Weekly, "Короткая история до 2024 года все равно дает прогноз")
	for _, p := range yf.Weekly {
		assert.Equal(t, 2026, p.Date.Year())
	}
}

func TestForecast2026Empty(t *testing.T) {
	yf := Forecast2026(nil)
	assert.Empty(t, yf.Weekly)
	assert.Empty(t, yf.Monthly)
}

func BenchmarkForecast(b *testing.B) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := make([]int, 120)
	for i := range cases {
		cases[i] = (i*37)%90 + 3
	}
	buckets := makeBuckets(start, cases...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Forecast(buckets, 52)
	}
}
