package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultTelegramURL      = "https://t.me/s/tu_ymen72"
	defaultTelegramMaxItems = 50
)

// Telegram разбирает веб-зеркало t.me/s публичного канала. Сообщение
// без отметки времени или тематического маркера пропускается.
type Telegram struct {
	url      string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewTelegram(cfg config.Source) *Telegram {
	u := cfg.URL
	if u == "" {
		u = defaultTelegramURL
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultTelegramMaxItems
	}
	return &Telegram{
		url:      u,
		maxItems: maxItems,
		breaker:  fetch.ForSource("telegram-tyumen"),
	}
}

func (t *Telegram) Name() string { return "Telegram (Тюмень 72)" }

func (t *Telegram) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Парсинг Telegram: %s", t.url)

	body, err := fetchPage(ctx, client, t.breaker, t.url)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки зеркала Telegram %s: %w", t.url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	var records []facts.RawRecord
	doc.Find("div.tgme_widget_message").EachWithBreak(func(i int, msg *goquery.Selection) bool {
		if i >= t.maxItems {
			return false
		}

		text := strings.TrimSpace(msg.Find("div.tgme_widget_message_text").First().Text())
		if text == "" || !facts.HasKeyword(text) {
			return true
		}

		dt, ok := msg.Find("time[datetime]").First().Attr("datetime")
		if !ok || strings.TrimSpace(dt) == "" {
			return true
		}

		records = append(records, facts.RawRecord{
			RawText:       ellipsize(text, 200),
			Title:         ellipsize(text, 100),
			CandidateDate: strings.TrimSpace(dt),
			URL:           t.url,
			SourceTag:     t.Name(),
		})
		return true
	})

	extractLogger.Info("Получено %d записей из Telegram", len(records))
	return records, nil
}
