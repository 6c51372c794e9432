package extract

import (
	"context"
	"fmt"
	"strings"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/mmcdole/gofeed"
)

const (
	defaultRSSURL      = "https://72.rospotrebnadzor.ru/rss/"
	defaultRSSMaxItems = 100
)

// RSSFeed читает официальную RSS-ленту и оставляет только записи с
// тематическими маркерами.
type RSSFeed struct {
	url      string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewRSSFeed(cfg config.Source) *RSSFeed {
	u := cfg.RSSURL
	if u == "" {
		u = defaultRSSURL
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultRSSMaxItems
	}
	return &RSSFeed{
		url:      u,
		maxItems: maxItems,
		breaker:  fetch.ForSource("rospotrebnadzor-rss"),
	}
}

func (r *RSSFeed) Name() string { return "Роспотребнадзор (RSS)" }

func (r *RSSFeed) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Парсинг RSS-ленты: %s", r.url)

	body, err := fetchPage(ctx, client, r.breaker, r.url)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки RSS-ленты %s: %w", r.url, err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка при парсинге RSS-ленты %s: %w", r.url, err)
	}

	var records []facts.RawRecord
	for i, item := range feed.Items {
		if i >= r.maxItems {
			break
		}
		if !facts.HasKeyword(item.Title + " " + item.Description) {
			continue
		}

		title := truncateRunes(strings.TrimSpace(item.Title), 100)
		if title == "" {
			title = defaultTitle
		}

		records = append(records, facts.RawRecord{
			RawText:       ellipsize(strings.TrimSpace(item.Description), 200),
			Title:         title,
			CandidateDate: item.Published,
			URL:           item.Link,
			SourceTag:     r.Name(),
			Published:     item.PublishedParsed,
		})
	}

	extractLogger.Info("Получено %d записей из RSS", len(records))
	return records, nil
}
