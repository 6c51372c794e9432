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

const (
	defaultTyumenNewsMaxItems = 30
	tyumenCityBaseURL         = "https://www.tyumen-city.ru"
)

// TyumenNews собирает новости портала администрации Тюмени с запасным
// обращением к областной газете.
type TyumenNews struct {
	baseURL  string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewTyumenNews(cfg config.Source) *TyumenNews {
	base := cfg.BaseURL
	if base == "" {
		base = tyumenCityBaseURL
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultTyumenNewsMaxItems
	}
	return &TyumenNews{
		baseURL:  strings.TrimRight(base, "/"),
		maxItems: maxItems,
		breaker:  fetch.ForSource("tyumen-news"),
	}
}

func (t *TyumenNews) Name() string { return "Администрация Тюмени" }

func (t *TyumenNews) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	candidates := []string{
		t.baseURL + "/news/",
		t.baseURL + "/",
		"https://t-i.ru/news/",
		t.baseURL + "/search/?q=" + url.QueryEscape("клещ"),
	}

	var body []byte
	for _, u := range candidates {
		extractLogger.Info("Попытка парсинга новостей Тюмени: %s", u)
		b, err := fetchPage(ctx, client, t.breaker, u)
		if err != nil {
			continue
		}
		body = b
		break
	}
	if body == nil {
		return nil, fmt.Errorf("не удалось получить доступ к новостям Тюмени")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	items := doc.Find("article, div").Filter(".news, .item, .article")
	if items.Length() == 0 {
		items = doc.Find("div.search-result")
	}

	var records []facts.RawRecord
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= t.maxItems {
			return false
		}

		titleSel := item.Find("a, h2, h3").Filter(".title, .link").First()
		if titleSel.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(titleSel.Text())

		dateSel := item.Find("time, span").Filter(".date, .time").First()
		var candidate string
		if dateSel.Length() > 0 {
			candidate = strings.TrimSpace(dateSel.Text())
			if candidate == "" {
				candidate = strings.TrimSpace(dateSel.AttrOr("datetime", ""))
			}
		}

		content := strings.TrimSpace(item.Find("div, p").Filter(".content, .text, .description").First().Text())
		if !hasAnyKeyword(title+" "+content, newsKeywords) {
			return true
		}

		var link string
		if href := item.Find("a[href]").First().AttrOr("href", ""); href != "" {
			link = absoluteURL(t.baseURL, href)
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
			SourceTag:     t.Name(),
		})
		return true
	})

	extractLogger.Info("Получено %d записей из новостей Тюмени", len(records))
	return records, nil
}
