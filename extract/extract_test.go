package extract

import (
	"strings"
	"testing"

	"tick-monitor/config"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParsingClient создает клиент без задержек между повторами.
func testParsingClient() *fetch.Client {
	return fetch.NewClient(config.Parsing{RetryCount: 1, RetryDelay: 0, Timeout: 5})
}

func enabled(v bool) *bool { return &v }

func sourceNames(sources []Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	return names
}

func TestFromConfigDefaults(t *testing.T) {
	sources := FromConfig(config.Sources{})

	require.Len(t, sources, 3)
	assert.Equal(t, []string{
		"Роспотребнадзор (поиск)",
		"Роспотребнадзор (RSS)",
		"Telegram (Тюмень 72)",
	}, sourceNames(sources))
}

func TestFromConfigOptionalSourcesByURL(t *testing.T) {
	cfg := config.Sources{
		VK:        config.Source{URL: "https://vk.com/tyumen"},
		LocalNews: config.Source{BaseURL: "https://72.ru"},
	}

	names := sourceNames(FromConfig(cfg))

	assert.Contains(t, names, "VK (Тюмень)")
	assert.Contains(t, names, "Местные новости (https://72.ru)")
}

func TestFromConfigSupplementsRequireExplicitEnable(t *testing.T) {
	cfg := config.Sources{
		MedicalAPI:  config.Source{URL: "https://api.example.ru", APIKey: "secret"},
		PDFBulletin: config.Source{URL: "https://example.ru/bulletin.pdf"},
	}

	names := sourceNames(FromConfig(cfg))
	assert.NotContains(t, names, "Роспотребнадзор (новости)")
	assert.NotContains(t, names, "Администрация Тюмени")
	assert.NotContains(t, names, "API медицинских учреждений")
	assert.NotContains(t, names, "PDF документ")

	cfg.RospotrebnadzorNews.Enabled = enabled(true)
	cfg.TyumenNews.Enabled = enabled(true)
	cfg.MedicalAPI.Enabled = enabled(true)
	cfg.PDFBulletin.Enabled = enabled(true)

	names = sourceNames(FromConfig(cfg))
	assert.Contains(t, names, "Роспотребнадзор (новости)")
	assert.Contains(t, names, "Администрация Тюмени")
	assert.Contains(t, names, "API медицинских учреждений")
	assert.Contains(t, names, "PDF документ")
}

func TestFromConfigSkipsMisconfiguredSources(t *testing.T) {
	t.Setenv("MEDICAL_API_KEY", "")

	cfg := config.Sources{
		VK:          config.Source{Enabled: enabled(true)},
		LocalNews:   config.Source{Enabled: enabled(true)},
		MedicalAPI:  config.Source{Enabled: enabled(true), URL: "https://api.example.ru"},
		PDFBulletin: config.Source{Enabled: enabled(true)},
	}

	// Включенные, но ненастроенные источники не попадают в список.
	sources := FromConfig(cfg)

	require.Len(t, sources, 3)
	assert.Equal(t, []string{
		"Роспотребнадзор (поиск)",
		"Роспотребнадзор (RSS)",
		"Telegram (Тюмень 72)",
	}, sourceNames(sources))
}

func TestFromConfigAllDisabled(t *testing.T) {
	off := enabled(false)
	cfg := config.Sources{
		WebSearch: config.Source{Enabled: off},
		RSS:       config.Source{Enabled: off},
		Telegram:  config.Source{Enabled: off},
	}

	assert.Empty(t, FromConfig(cfg))
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{"абсолютная ссылка", "https://example.ru", "https://other.ru/news/1", "https://other.ru/news/1"},
		{"относительная с косой чертой", "https://example.ru", "/news/1", "https://example.ru/news/1"},
		{"относительная без косой черты", "https://example.ru/", "news/1", "https://example.ru/news/1"},
		{"пустая ссылка", "https://example.ru", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, absoluteURL(tt.base, tt.href))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	// Лимит считается в рунах, а не в байтах.
	if got := truncateRunes("клещи", 4); got != "клещ" {
		t.Errorf("Ожидалось 'клещ', получено '%s'", got)
	}
	if got := truncateRunes("клещи", 10); got != "клещи" {
		t.Errorf("Строка короче лимита должна вернуться без изменений, получено '%s'", got)
	}
}

func TestEllipsize(t *testing.T) {
	assert.Equal(t, "клещи", ellipsize("клещи", 5))
	assert.Equal(t, "кле...", ellipsize("клещи", 3))
}

func TestHasAnyKeyword(t *testing.T) {
	assert.True(t, hasAnyKeyword("Профилактика боррелиоза в регионе", newsKeywords))
	assert.True(t, hasAnyKeyword("ОСТОРОЖНО: КЛЕЩИ", newsKeywords))
	assert.False(t, hasAnyKeyword("Городской субботник", newsKeywords))
}

func TestFilterByClass(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div class="news-date">10.06.2024</div><div class="body">текст</div><div>без класса</div>`))
	require.NoError(t, err)

	matched := filterByClass(doc.Find("div"), dateishClass)
	require.Equal(t, 1, matched.Length())
	assert.Equal(t, "10.06.2024", matched.First().Text())
}
