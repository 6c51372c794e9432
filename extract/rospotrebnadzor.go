package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
)

const defaultRospotrebNewsMaxItems = 50

// RospotrebnadzorNews разбирает ленту новостей сайта управления.
// Расположение ленты меняется, поэтому типовые адреса перебираются,
// пока один не ответит осмысленной страницей.
type RospotrebnadzorNews struct {
	baseURL  string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewRospotrebnadzorNews(cfg config.Source) *RospotrebnadzorNews {
	base := cfg.BaseURL
	if base == "" {
		base = defaultWebBaseURL
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultRospotrebNewsMaxItems
	}
	return &RospotrebnadzorNews{
		baseURL:  base,
		maxItems: maxItems,
		breaker:  fetch.ForSource("rospotrebnadzor-news"),
	}
}

func (r *RospotrebnadzorNews) Name() string { return "Роспотребнадзор (новости)" }

func (r *RospotrebnadzorNews) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	candidates := []string{
		r.baseURL + "/news/",
		r.baseURL + "/news",
		r.baseURL + "/press/",
		r.baseURL + "/press",
		r.baseURL + "/category/news/",
		r.baseURL + "/category/press/",
		r.baseURL + "/announcements/",
		r.baseURL + "/",
		r.baseURL + "/search/?q=" + url.QueryEscape("клещи"),
		r.baseURL + "/search/?q=" + url.QueryEscape("клещ"),
	}

	var body []byte
	for _, u := range candidates {
		extractLogger.Info("Попытка парсинга новостей Роспотребнадзора: %s", u)
		b, err := fetchPage(ctx, client, r.breaker, u)
		if err != nil {
			continue
		}
		// Страница без упоминания клещей и почти пустая бесполезна
		if strings.Contains(strings.ToLower(string(b)), "клещ") || len(b) > 1000 {
			body = b
			extractLogger.Info("Успешно получен доступ к новостям: %s", u)
			break
		}
		extractLogger.Debug("Страница доступна, но не содержит релевантного контента: %s", u)
	}
	if body == nil {
		return nil, fmt.Errorf("не удалось получить доступ к новостям Роспотребнадзора")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	items := doc.Find("article, div").Filter(".news-item, .article-item, .item")
	if items.Length() == 0 {
		items = doc.Find("div.content")
	}

	var records []facts.RawRecord
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= r.maxItems {
			return false
		}

		titleSel := item.Find("h1, h2, h3, h4, a").Filter(".title, .news-title, .article-title").First()
		if titleSel.Length() == 0 {
			titleSel = item.Find("h1, h2, h3, h4").First()
		}
		if titleSel.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(titleSel.Text())

		dateSel := item.Find("time, span, div").Filter(".date, .time, .news-date").First()
		var candidate string
		if dateSel.Length() > 0 {
			candidate = strings.TrimSpace(dateSel.Text())
			if candidate == "" {
				candidate = strings.TrimSpace(dateSel.AttrOr("datetime", ""))
			}
		}

		content := strings.TrimSpace(item.Find("div, p").Filter(".content, .text, .description, .excerpt").First().Text())
		if title == "" && content == "" {
			return true
		}

		var link string
		if href := item.Find("a[href]").First().AttrOr("href", ""); href != "" {
			link = absoluteURL(r.baseURL, href)
		}

		titleOut := truncateRunes(title, 100)
		if titleOut == "" {
			titleOut = defaultTitle
		}
		records = append(records, facts.RawRecord{
			RawText:       ellipsize(content, 200),
			Title:         titleOut,
			CandidateDate: candidate,
			URL:           link,
			SourceTag:     r.Name(),
		})
		return true
	})

	extractLogger.Info("Получено %d записей из новостей Роспотребнадзора", len(records))
	return records, nil
}
