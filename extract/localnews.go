package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
)

const defaultLocalNewsMaxItems = 30

var (
	localArticleClass = regexp.MustCompile(`(?i)article|news|item|post`)
	localTitleClass   = regexp.MustCompile(`(?i)title|heading`)
	localContentClass = regexp.MustCompile(`(?i)content|text|excerpt`)
)

// LocalNews — обобщенный экстрактор местного новостного сайта: перебор
// типовых поисковых URL с откатом на главную страницу. Записи
// отбираются по маркеру в заголовке.
type LocalNews struct {
	baseURL  string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewLocalNews(cfg config.Source) *LocalNews {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultLocalNewsMaxItems
	}
	return &LocalNews{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxItems: maxItems,
		breaker:  fetch.ForSource("local-news"),
	}
}

func (l *LocalNews) Name() string { return "Местные новости (" + l.baseURL + ")" }

func (l *LocalNews) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Парсинг местного новостного сайта: %s", l.baseURL)

	query := url.QueryEscape("клещ")
	candidates := []string{
		l.baseURL + "/search?q=" + query,
		l.baseURL + "/search/?query=" + query,
		l.baseURL + "/news/?search=" + query,
		l.baseURL + "/?s=" + query,
		l.baseURL,
	}

	var body []byte
	for _, u := range candidates {
		b, err := fetchPage(ctx, client, l.breaker, u)
		if err != nil {
			extractLogger.Debug("Поисковый URL %s недоступен: %v", u, err)
			continue
		}
		body = b
		break
	}
	if body == nil {
		return nil, fmt.Errorf("не удалось получить доступ к %s", l.baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	articles := filterByClass(doc.Find("article, div"), localArticleClass)
	if articles.Length() == 0 {
		articles = doc.Find("div.content")
	}

	now := time.Now()
	var records []facts.RawRecord
	articles.EachWithBreak(func(i int, article *goquery.Selection) bool {
		if i >= l.maxItems {
			return false
		}

		titleSel := filterByClass(article.Find("h1, h2, h3, a"), localTitleClass).First()
		if titleSel.Length() == 0 {
			titleSel = article.Find("h1, h2, h3").First()
		}
		if titleSel.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(titleSel.Text())
		if !facts.HasKeyword(title) {
			return true
		}

		var candidate string
		dateSel := filterByClass(article.Find("time, span"), dateishClass).First()
		if dateSel.Length() > 0 {
			candidate = strings.TrimSpace(dateSel.Text())
			if dt, ok := dateSel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
				candidate = strings.TrimSpace(dt)
			}
		}

		content := strings.TrimSpace(filterByClass(article.Find("div, p"), localContentClass).First().Text())
		link := absoluteURL(l.baseURL, article.Find("a[href]").First().AttrOr("href", ""))

		// Лента без дат у статей датируется днем обхода
		published := now
		records = append(records, facts.RawRecord{
			RawText:       truncateRunes(content, 500),
			Title:         truncateRunes(title, 200),
			CandidateDate: candidate,
			URL:           link,
			SourceTag:     l.Name(),
			Published:     &published,
		})
		return true
	})

	extractLogger.Info("Получено %d записей с %s", len(records), l.baseURL)
	return records, nil
}
