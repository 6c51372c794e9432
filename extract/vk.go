package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
)

const defaultVKMaxItems = 20

var (
	vkPostClass = regexp.MustCompile(`(?i)post|wall_item|post_content`)
	vkTextClass = regexp.MustCompile(`(?i)text|post_text|wall_post_text`)
)

// VKWall разбирает публичную стену сообщества через веб-страницу:
// токена API нет, поэтому верстка угадывается каскадом селекторов.
type VKWall struct {
	url      string
	maxItems int
	breaker  *fetch.CircuitBreaker
}

func NewVKWall(cfg config.Source) *VKWall {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultVKMaxItems
	}
	return &VKWall{
		url:      cfg.URL,
		maxItems: maxItems,
		breaker:  fetch.ForSource("vk-tyumen"),
	}
}

func (v *VKWall) Name() string { return "VK (Тюмень)" }

func (v *VKWall) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Парсинг VK группы: %s", v.url)

	// Структура страницы зависит от варианта URL, пробуем по очереди
	variants := []string{
		v.url,
		strings.Replace(v.url, "vk.com/", "vk.com/wall-", 1),
		v.url + "?w=wall-",
	}

	var body []byte
	for _, u := range variants {
		b, err := fetchPage(ctx, client, v.breaker, u)
		if err != nil {
			extractLogger.Debug("Вариант URL %s недоступен: %v", u, err)
			continue
		}
		body = b
		if strings.Contains(strings.ToLower(string(b)), "клещ") {
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("не удалось получить доступ к VK группе %s", v.url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	posts := filterByClass(doc.Find("div"), vkPostClass)
	if posts.Length() == 0 {
		posts = doc.Find("div[data-post-id]")
	}

	now := time.Now()
	var records []facts.RawRecord
	posts.EachWithBreak(func(i int, post *goquery.Selection) bool {
		if i >= v.maxItems {
			return false
		}

		textSel := filterByClass(post.Find("div"), vkTextClass).First()
		if textSel.Length() == 0 {
			textSel = post.Find("div.wall_post_text").First()
		}
		if textSel.Length() == 0 {
			return true
		}
		text := strings.TrimSpace(textSel.Text())
		if text == "" || !facts.HasKeyword(text) {
			return true
		}

		var candidate string
		dateSel := post.Find("time").First()
		if dateSel.Length() == 0 {
			dateSel = filterByClass(post.Find("span"), dateishClass).First()
		}
		if dateSel.Length() > 0 {
			if dt, ok := dateSel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
				candidate = strings.TrimSpace(dt)
			} else {
				candidate = strings.TrimSpace(dateSel.Text())
			}
		}

		postURL := v.url
		if href := post.Find(`a[href*="/wall-"], a[href*="post_id"]`).First().AttrOr("href", ""); href != "" {
			postURL = href
			if !strings.HasPrefix(postURL, "http") {
				postURL = "https://vk.com" + postURL
			}
		}

		// Дата поста часто относительная («вчера», «2 ч»), тогда
		// запись датируется днем обхода.
		published := now
		records = append(records, facts.RawRecord{
			RawText:       truncateRunes(text, 500),
			Title:         ellipsize(text, 100),
			CandidateDate: candidate,
			URL:           postURL,
			SourceTag:     v.Name(),
			Published:     &published,
		})
		return true
	})

	extractLogger.Info("Получено %d записей из VK", len(records))
	return records, nil
}
