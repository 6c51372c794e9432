// Package news выводит новостные заметки из накопленных записей:
// всплески по населенным пунктам и дням, общий рост за неделю и сводку
// по самым активным районам. Заметки не хранятся, лента строится
// заново при каждом запросе.
package news

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"tick-monitor/monitoring"
	"tick-monitor/store"
)

var newsLogger = monitoring.NewLogger("News")

// Kind — тип новостной заметки.
type Kind string

const (
	KindSpike      Kind = "spike"
	KindDailySpike Kind = "daily_spike"
	KindActivity   Kind = "activity"
	KindTrend      Kind = "trend"
	KindSummary    Kind = "summary"
)

// Priority — важность заметки в ленте.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

const (
	defaultDaysBack = 30
	maxItems        = 20

	spikeRatio       = 1.5
	minSpikeCases    = 2
	highSpikeCases   = 10
	minActivityCases = 5
	dailySpikeRatio  = 2.0
	minDailyCases    = 3
	trendRatio       = 1.3
	minTrendCases    = 5
	minSummaryCases  = 10

	// Подставляется в текст, когда у дневного всплеска нет
	// привязки к населенному пункту.
	fallbackRegion = "Тюменской области"
)

// Item — одна заметка новостной ленты.
type Item struct {
	Text     string   `json:"text"`
	Date     string   `json:"date"`
	Location string   `json:"location,omitempty"`
	Cases    int      `json:"cases"`
	Kind     Kind     `json:"kind"`
	Priority Priority `json:"priority"`

	when time.Time
}

// FromStore строит ленту по записям за два окна давности: текущее и
// предшествующее, нужное для сравнения всплесков.
func FromStore(ctx context.Context, s *store.Store, daysBack int) ([]Item, error) {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	now := time.Now().UTC()
	today := midnight(now)
	from := store.FormatDate(today.AddDate(0, 0, -2*daysBack))
	records, err := s.QueryRange(ctx, from, store.FormatDate(today))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записей для новостной ленты: %w", err)
	}
	return Build(records, now, daysBack), nil
}

// Build формирует ленту из готового набора записей. Лента
// ограничена maxItems заметками и отсортирована по важности, затем по
// дате, свежие выше.
func Build(records []store.Record, now time.Time, daysBack int) []Item {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	today := midnight(now.UTC())
	currentFrom := today.AddDate(0, 0, -daysBack)
	previousFrom := today.AddDate(0, 0, -2*daysBack)

	locations := make(map[string]*locSums)
	days := make(map[string]int)
	dayLocations := make(map[string]map[string]int)
	weeks := make(map[int]int)

	for _, rec := range records {
		day, err := store.ParseDate(rec.Date)
		if err != nil {
			newsLogger.Warn("Запись %d пропущена: некорректная дата %q", rec.ID, rec.Date)
			continue
		}
		if day.After(today) || !day.After(previousFrom) {
			continue
		}
		inCurrent := day.After(currentFrom)

		if rec.Location != "" {
			ls := locations[rec.Location]
			if ls == nil {
				ls = &locSums{}
				locations[rec.Location] = ls
			}
			if inCurrent {
				ls.current += rec.Cases
				if day.After(ls.lastDate) {
					ls.lastDate = day
				}
			} else {
				ls.previous += rec.Cases
			}
		}

		if inCurrent {
			days[rec.Date] += rec.Cases
			if rec.Location != "" && rec.Cases > 0 {
				byLoc := dayLocations[rec.Date]
				if byLoc == nil {
					byLoc = make(map[string]int)
					dayLocations[rec.Date] = byLoc
				}
				byLoc[rec.Location] += rec.Cases
			}
			weeks[isoKey(day)] += rec.Cases
		}
	}

	items := make([]Item, 0, 16)

	// Всплески по населенным пунктам: текущее окно против предыдущего.
	spiked := make(map[string]bool)
	for loc, ls := range locations {
		if ls.current < minSpikeCases || float64(ls.current) <= spikeRatio*float64(ls.previous) {
			continue
		}
		priority := PriorityMedium
		if ls.current >= highSpikeCases {
			priority = PriorityHigh
		}
		spiked[loc] = true
		items = append(items, Item{
			Text:     fmt.Sprintf("Всплеск активности клещей в %s, %d случаев за последние %d дней", loc, ls.current, daysBack),
			Location: loc,
			Cases:    ls.current,
			Kind:     KindSpike,
			Priority: priority,
			when:     ls.lastDate,
		})
	}

	// Повышенная активность без всплеска.
	for loc, ls := range locations {
		if spiked[loc] || ls.current < minActivityCases {
			continue
		}
		items = append(items, Item{
			Text:     fmt.Sprintf("Повышенная активность клещей в %s, зарегистрировано %d случаев", loc, ls.current),
			Location: loc,
			Cases:    ls.current,
			Kind:     KindActivity,
			Priority: PriorityMedium,
			when:     ls.lastDate,
		})
	}

	items = append(items, dailySpikes(days, dayLocations)...)

	// Рост за последнюю неделю с данными против среднего двух
	// предыдущих недель окна.
	if len(weeks) >= 3 {
		keys := make([]int, 0, len(weeks))
		for k := range weeks {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		currentWeek := weeks[keys[len(keys)-1]]
		priorMean := float64(weeks[keys[len(keys)-2]]+weeks[keys[len(keys)-3]]) / 2
		if float64(currentWeek) > trendRatio*priorMean && currentWeek >= minTrendCases {
			items = append(items, Item{
				Text:     fmt.Sprintf("Наблюдается рост активности клещей, за последнюю неделю зарегистрировано %d случаев", currentWeek),
				Cases:    currentWeek,
				Kind:     KindTrend,
				Priority: PriorityMedium,
				when:     today,
			})
		}
	}

	if summary, ok := topSummary(locations, today); ok {
		items = append(items, summary)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := priorityRank(items[i].Priority), priorityRank(items[j].Priority)
		if ri != rj {
			return ri > rj
		}
		if !items[i].when.Equal(items[j].when) {
			return items[i].when.After(items[j].when)
		}
		return items[i].Text < items[j].Text
	})
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	for i := range items {
		items[i].Date = items[i].when.Format("02.01.2006")
	}
	return items
}

// dailySpikes ищет дни, выбивающиеся из среднего по предыдущим дням
// окна. Первый день окна всплеском быть не может.
func dailySpikes(days map[string]int, dayLocations map[string]map[string]int) []Item {
	type dayCases struct {
		key   string
		day   time.Time
		cases int
	}
	ordered := make([]dayCases, 0, len(days))
	for key, cases := range days {
		day, err := store.ParseDate(key)
		if err != nil {
			continue
		}
		ordered = append(ordered, dayCases{key: key, day: day, cases: cases})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].day.Before(ordered[j].day) })

	items := make([]Item, 0, 4)
	runningSum := 0
	for i, dc := range ordered {
		if i > 0 {
			mean := float64(runningSum) / float64(i)
			if float64(dc.cases) > dailySpikeRatio*mean && dc.cases >= minDailyCases {
				location := topDayLocation(dayLocations[dc.key])
				name := location
				if name == "" {
					name = fallbackRegion
				}
				items = append(items, Item{
					Text:     fmt.Sprintf("Всплеск активности клещей в %s, %d укуса за день (%s)", name, dc.cases, dc.day.Format("02.01.2006")),
					Location: location,
					Cases:    dc.cases,
					Kind:     KindDailySpike,
					Priority: PriorityHigh,
					when:     dc.day,
				})
			}
		}
		runningSum += dc.cases
	}
	return items
}

// topDayLocation выбирает населенный пункт с наибольшим числом случаев
// за день, при равенстве первым по алфавиту.
func topDayLocation(counts map[string]int) string {
	best := ""
	bestCases := -1
	for loc, cases := range counts {
		if cases > bestCases || (cases == bestCases && loc < best) {
			best = loc
			bestCases = cases
		}
	}
	return best
}

// locSums — суммы случаев по населенному пункту в текущем и
// предыдущем окнах и дата последнего упоминания.
type locSums struct {
	current  int
	previous int
	lastDate time.Time
}

// topSummary собирает сводку по трем самым активным районам текущего
// окна. Сводка выходит, когда их суммарные случаи достигают порога.
func topSummary(locations map[string]*locSums, today time.Time) (Item, bool) {
	type locTotal struct {
		name  string
		cases int
	}
	totals := make([]locTotal, 0, len(locations))
	for loc, ls := range locations {
		if ls.current > 0 {
			totals = append(totals, locTotal{name: loc, cases: ls.current})
		}
	}
	if len(totals) == 0 {
		return Item{}, false
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].cases != totals[j].cases {
			return totals[i].cases > totals[j].cases
		}
		return totals[i].name < totals[j].name
	})
	if len(totals) > 3 {
		totals = totals[:3]
	}

	combined := 0
	names := make([]string, 0, len(totals))
	for _, lt := range totals {
		combined += lt.cases
		names = append(names, lt.name)
	}
	if combined < minSummaryCases {
		return Item{}, false
	}
	return Item{
		Text:     fmt.Sprintf("Наибольшая активность клещей в районах: %s (всего %d случаев)", strings.Join(names, ", "), combined),
		Cases:    combined,
		Kind:     KindSummary,
		Priority: PriorityLow,
		when:     today,
	}, true
}

func isoKey(t time.Time) int {
	year, week := t.ISOWeek()
	return year*100 + week
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
