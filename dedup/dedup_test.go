package dedup

import (
	"context"
	"path/filepath"
	"testing"

	"tick-monitor/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	s, err := store.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, s.InitSchema(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func apply(t *testing.T, s *store.Store, d *Deduper, rec store.Record) Action {
	t.Helper()
	var action Action
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		action, err = d.Apply(context.Background(), tx, rec)
		return err
	})
	require.NoError(t, err)
	return action
}

func webRecord(cases int) store.Record {
	return store.Record{
		Date:      "2024-06-15",
		Cases:     cases,
		RiskLevel: store.RiskModerate,
		Source:    "rospotrebnadzor-web",
		Title:     "В Тюмени зарегистрировано 73 обращения",
		Content:   "текст новости",
		URL:       "https://72.rospotrebnadzor.ru/news/1",
	}
}

func TestApplyInsertsNew(t *testing.T) {
	s := testStore(t)
	d := New()

	action := apply(t, s, d, webRecord(73))
	assert.Equal(t, ActionInserted, action)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApplySkipsSameFingerprintWithinRun(t *testing.T) {
	s := testStore(t)
	d := New()

	assert.Equal(t, ActionInserted, apply(t, s, d, webRecord(73)))
	assert.Equal(t, ActionSkipped, apply(t, s, d, webRecord(73)))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApplyUpdatesByURLAcrossRuns(t *testing.T) {
	s := testStore(t)

	// Первый прогон: вставка
	assert.Equal(t, ActionInserted, apply(t, s, New(), webRecord(73)))

	first, err := s.GetByURL(context.Background(), webRecord(73).URL)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Второй прогон видит тот же URL с обновленным телом
	updated := webRecord(80)
	updated.Content = "обновленный текст новости"
	assert.Equal(t, ActionUpdated, apply(t, s, New(), updated))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "Повторная загрузка URL не должна плодить строки")

	row, err := s.GetByURL(context.Background(), updated.URL)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 80, row.Cases)
	assert.Equal(t, "обновленный текст новости", row.Content)
	assert.False(t, row.LastUpdatedAt.Before(first.LastUpdatedAt), "Время обновления должно продвигаться вперед")
}

func TestApplyUpdatesByTitleAndDate(t *testing.T) {
	s := testStore(t)

	rec := webRecord(73)
	rec.URL = ""
	assert.Equal(t, ActionInserted, apply(t, s, New(), rec))

	// Та же новость на следующий день без URL
	next := rec
	next.Date = "2024-06-16"
	next.Cases = 75
	assert.Equal(t, ActionUpdated, apply(t, s, New(), next))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApplyInsertsOutsideDayWindow(t *testing.T) {
	s := testStore(t)

	rec := webRecord(73)
	rec.URL = ""
	assert.Equal(t, ActionInserted, apply(t, s, New(), rec))

	// Совпадающий заголовок, но разница в датах больше суток
	far := rec
	far.Date = "2024-06-18"
	assert.Equal(t, ActionInserted, apply(t, s, New(), far))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestApplyDifferentSourcesKeptApart(t *testing.T) {
	s := testStore(t)
	d := New()

	rec := webRecord(73)
	rec.URL = ""
	other := rec
	other.Source = "telegram"

	assert.Equal(t, ActionInserted, apply(t, s, d, rec))
	assert.Equal(t, ActionInserted, apply(t, s, d, other))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "Записи разных источников не считаются дубликатами")
}

func TestRerunIdempotence(t *testing.T) {
	s := testStore(t)

	corpus := []store.Record{
		webRecord(73),
		{Date: "2024-06-16", Cases: 5, RiskLevel: store.RiskLow, Source: "rss", Title: "Укусы в Ишиме"},
		{Date: "2024-06-17", Cases: 8, RiskLevel: store.RiskLow, Source: "vk", Title: "Клещи в Тобольске"},
	}

	run := func() {
		d := New()
		for _, rec := range corpus {
			apply(t, s, d, rec)
		}
	}

	run()
	countAfterFirst, err := s.Count(context.Background())
	require.NoError(t, err)

	run()
	countAfterSecond, err := s.Count(context.Background())
	require.NoError(t, err)

	assert.Equal(t, countAfterFirst, countAfterSecond, "Повторный прогон того же корпуса не меняет число строк")
	assert.Equal(t, int64(3), countAfterSecond)
}

func TestFingerprint(t *testing.T) {
	rec := webRecord(73)

	assert.Equal(t, Fingerprint(rec), Fingerprint(rec), "Отпечаток стабилен")

	upper := rec
	upper.Title = "  " + upper.Title + "  "
	assert.Equal(t, Fingerprint(rec), Fingerprint(upper), "Пробелы по краям заголовка не меняют отпечаток")

	other := rec
	other.URL = "https://72.rospotrebnadzor.ru/news/2"
	assert.NotEqual(t, Fingerprint(rec), Fingerprint(other), "Другой URL дает другой отпечаток")

	otherDay := rec
	otherDay.Date = "2024-06-16"
	assert.NotEqual(t, Fingerprint(rec), Fingerprint(otherDay))
}
