// Package extract собирает сырые записи о клещевой активности из
// источников данных: поисковой выдачи и RSS Роспотребнадзора, веб-зеркала
// Telegram-канала, стены VK, местных новостных сайтов и дополнительных
// источников. Экстракторы переживают смену верстки: селекторы
// перебираются каскадом, ошибки отдельных элементов логируются и
// пропускаются, источник целиком не падает из-за одной битой записи.
package extract

import (
	"context"
	"regexp"
	"strings"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"
	"tick-monitor/monitoring"

	"github.com/PuerkitoBio/goquery"
)

var extractLogger = monitoring.NewLogger("Extract")

// defaultTitle подставляется записям, у которых не нашлось заголовка.
const defaultTitle = "Без заголовка"

// Source — один источник данных пайплайна.
type Source interface {
	// Name возвращает отображаемое имя источника. Оно же записывается
	// в поле source сохраненных записей.
	Name() string
	// Fetch собирает сырые записи источника. При отмене контекста
	// возвращает уже собранную часть вместе с ошибкой контекста.
	Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error)
}

// FromConfig собирает включенные источники. Поиск, RSS и Telegram
// работают по умолчанию; VK и местные новости включаются заданным URL;
// остальные источники требуют явного enabled в конфигурации.
func FromConfig(cfg config.Sources) []Source {
	var sources []Source

	if cfg.WebSearch.IsOn(true) {
		sources = append(sources, NewWebSearch(cfg.WebSearch))
	}
	if cfg.RSS.IsOn(true) {
		sources = append(sources, NewRSSFeed(cfg.RSS))
	}
	if cfg.Telegram.IsOn(true) {
		sources = append(sources, NewTelegram(cfg.Telegram))
	}
	if cfg.VK.IsOn(cfg.VK.URL != "") {
		if cfg.VK.URL == "" {
			extractLogger.Warn("Источник VK включен, но URL группы не задан, пропускаем")
		} else {
			sources = append(sources, NewVKWall(cfg.VK))
		}
	}
	if cfg.LocalNews.IsOn(cfg.LocalNews.BaseURL != "") {
		if cfg.LocalNews.BaseURL == "" {
			extractLogger.Warn("Источник местных новостей включен, но base_url не задан, пропускаем")
		} else {
			sources = append(sources, NewLocalNews(cfg.LocalNews))
		}
	}
	if cfg.RospotrebnadzorNews.IsOn(false) {
		sources = append(sources, NewRospotrebnadzorNews(cfg.RospotrebnadzorNews))
	}
	if cfg.TyumenNews.IsOn(false) {
		sources = append(sources, NewTyumenNews(cfg.TyumenNews))
	}
	if cfg.MedicalAPI.IsOn(false) {
		src := NewMedicalAPI(cfg.MedicalAPI)
		if src.apiURL == "" || src.apiKey == "" {
			extractLogger.Warn("API медицинских учреждений включено, но адрес или ключ не заданы, пропускаем")
		} else {
			sources = append(sources, src)
		}
	}
	if cfg.PDFBulletin.IsOn(false) {
		if cfg.PDFBulletin.URL == "" {
			extractLogger.Warn("Источник PDF включен, но URL документа не задан, пропускаем")
		} else {
			sources = append(sources, NewPDFBulletin(cfg.PDFBulletin))
		}
	}

	return sources
}

// fetchPage загружает страницу через circuit breaker источника:
// повторяющиеся отказы открывают breaker и снимают нагрузку с хоста.
func fetchPage(ctx context.Context, client *fetch.Client, cb *fetch.CircuitBreaker, url string) ([]byte, error) {
	var body []byte
	err := cb.Call(func() error {
		var err error
		body, _, err = client.Get(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// dateishClass отмечает элементы, в классах которых обычно лежит дата.
var dateishClass = regexp.MustCompile(`(?i)date|time|published`)

// newsKeywords — маркеры для муниципальных лент: они упоминают и
// боррелиоз, которого нет в общем списке.
var newsKeywords = append(append([]string(nil), facts.Keywords...), "боррелиоз")

func hasAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// filterByClass оставляет элементы выборки, атрибут class которых
// совпадает с шаблоном. Аналог селектора по регулярному выражению.
func filterByClass(sel *goquery.Selection, pattern *regexp.Regexp) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && pattern.MatchString(class)
	})
}

// absoluteURL достраивает относительную ссылку до абсолютной.
// Абсолютные ссылки возвращаются как есть.
func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// truncateRunes обрезает строку до limit рун без многоточия.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// ellipsize обрезает строку до limit рун, добавляя многоточие.
func ellipsize(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
