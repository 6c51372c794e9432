package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	readability "github.com/go-shiori/go-readability"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultWebBaseURL  = "https://72.rospotrebnadzor.ru"
	defaultWebMaxItems = 200
	// Поисковая выдача длиннее 13 страниц на практике не встречается.
	maxSearchPages = 13
	// Минимальная длина осмысленного текста статьи.
	minArticleText = 200
)

// Ссылки на статьи в выдаче и на самом сайте.
var articleLinkPattern = regexp.MustCompile(`/content/|/news/`)

// metaDateName отмечает мета-теги с датой публикации.
var metaDateName = regexp.MustCompile(`(?i)date|published`)

// Селекторы контейнера статьи в порядке убывания точности.
var contentSelectors = []string{
	"div.content",
	"div.article-content",
	"div.text",
	"div.news-content",
	"article",
	"div.main-content",
	`div[class*="content"]`,
	`div[class*="text"]`,
}

// WebSearch обходит поисковую выдачу сайта Роспотребнадзора по запросу
// о клещах и разбирает каждую найденную статью целиком.
type WebSearch struct {
	baseURL   string
	searchURL string
	maxItems  int
	breaker   *fetch.CircuitBreaker
}

// NewWebSearch создает экстрактор поиска с умолчаниями для пустых полей.
func NewWebSearch(cfg config.Source) *WebSearch {
	base := cfg.BaseURL
	if base == "" {
		base = defaultWebBaseURL
	}
	search := cfg.SearchURL
	if search == "" {
		search = base + "/search/?q=" + url.QueryEscape("клещи") + "&spell=1&where="
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultWebMaxItems
	}
	return &WebSearch{
		baseURL:   base,
		searchURL: search,
		maxItems:  maxItems,
		breaker:   fetch.ForSource("rospotrebnadzor-web"),
	}
}

func (w *WebSearch) Name() string { return "Роспотребнадзор (поиск)" }

// Fetch собирает ссылки со всех страниц выдачи и разбирает статьи.
// Ошибка разбора отдельной статьи не прерывает обход.
func (w *WebSearch) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Начинаем парсинг поиска: %s", w.searchURL)

	links, err := w.collectArticleLinks(ctx, client)
	if len(links) == 0 {
		if err != nil {
			return nil, err
		}
		extractLogger.Warn("Не найдено статей в результатах поиска")
		return nil, nil
	}
	extractLogger.Info("Всего найдено %d уникальных статей", len(links))

	var records []facts.RawRecord
	for i, link := range links {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		extractLogger.Debug("Парсинг статьи %d/%d: %s", i+1, len(links), link)
		rec, err := w.parseArticle(ctx, client, link)
		if err != nil {
			extractLogger.Warn("Ошибка при парсинге статьи %s: %v", link, err)
			continue
		}
		records = append(records, rec)
	}

	extractLogger.Info("Получено %d записей с веб-сайта через поиск", len(records))
	return records, nil
}

// collectArticleLinks обходит страницы выдачи и собирает уникальные
// ссылки на статьи. Страница без новых ссылок завершает обход.
func (w *WebSearch) collectArticleLinks(ctx context.Context, client *fetch.Client) ([]string, error) {
	sep := "?"
	if strings.Contains(w.searchURL, "?") {
		sep = "&"
	}

	seen := make(map[string]bool)
	var links []string

	for page := 1; page <= maxSearchPages && len(links) < w.maxItems; page++ {
		pageURL := fmt.Sprintf("%s%spage=%d", w.searchURL, sep, page)
		extractLogger.Info("Парсинг страницы поиска %d: %s", page, pageURL)

		body, err := fetchPage(ctx, client, w.breaker, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("ошибка загрузки поисковой выдачи: %w", err)
			}
			extractLogger.Debug("Не удалось загрузить страницу %d: %v", page, err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			extractLogger.Warn("Ошибка разбора страницы поиска %d: %v", page, err)
			break
		}

		added := 0
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href := strings.TrimSpace(s.AttrOr("href", ""))
			if href == "" || !articleLinkPattern.MatchString(href) {
				return
			}
			// Чужие хосты в выдаче не интересны
			if !strings.HasPrefix(href, "/") && !strings.Contains(href, w.baseURL) {
				return
			}
			full := absoluteURL(w.baseURL, href)
			if seen[full] {
				return
			}
			seen[full] = true
			links = append(links, full)
			added++
		})

		if added == 0 {
			extractLogger.Debug("На странице %d не найдено ссылок, возможно это последняя страница", page)
			break
		}
		extractLogger.Info("На странице %d найдено %d ссылок", page, added)
	}

	if len(links) > w.maxItems {
		links = links[:w.maxItems]
	}
	return links, nil
}

// parseArticle извлекает заголовок, кандидата даты и текст статьи.
func (w *WebSearch) parseArticle(ctx context.Context, client *fetch.Client, articleURL string) (facts.RawRecord, error) {
	body, err := fetchPage(ctx, client, w.breaker, articleURL)
	if err != nil {
		return facts.RawRecord{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return facts.RawRecord{}, fmt.Errorf("ошибка разбора HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h2.title").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("div.title").First().Text())
	}
	if title == "" {
		title = defaultTitle
	}

	content := w.extractContent(doc, body, articleURL)

	return facts.RawRecord{
		RawText:       truncateRunes(content, 5000),
		Title:         truncateRunes(title, 200),
		CandidateDate: articleDate(doc),
		URL:           articleURL,
		SourceTag:     w.Name(),
	}, nil
}

// articleDate собирает кандидата даты публикации со страницы: атрибут
// datetime, элементы с датой в классе, мета-теги. Дату в теле текста
// при необходимости найдет извлечение фактов.
func articleDate(doc *goquery.Document) string {
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}

	sel := doc.Find("time").First()
	if sel.Length() == 0 {
		for _, tag := range []string{"div", "span", "p"} {
			sel = filterByClass(doc.Find(tag), dateishClass).First()
			if sel.Length() > 0 {
				break
			}
		}
	}
	if sel.Length() > 0 {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return text
		}
		if dt, ok := sel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			return strings.TrimSpace(dt)
		}
	}

	if c, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok && strings.TrimSpace(c) != "" {
		return strings.TrimSpace(c)
	}
	var metaContent string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !metaDateName.MatchString(s.AttrOr("name", "")) {
			return true
		}
		metaContent = strings.TrimSpace(s.AttrOr("content", ""))
		return metaContent == ""
	})
	return metaContent
}

// extractContent перебирает селекторы контейнера статьи, затем body без
// служебных элементов, затем извлечение через readability.
func (w *WebSearch) extractContent(doc *goquery.Document, body []byte, articleURL string) string {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		clean := sel.Clone()
		clean.Find("script, style, nav, footer, header").Remove()
		text := strings.TrimSpace(clean.Text())
		if len(text) > minArticleText {
			return text
		}
	}

	bodyClean := doc.Find("body").Clone()
	bodyClean.Find("script, style, nav, footer, header, aside").Remove()
	text := strings.TrimSpace(bodyClean.Text())
	if len(text) > minArticleText {
		return text
	}

	// Последний шанс: readability вытягивает основной текст даже из
	// нестандартной верстки.
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return text
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		extractLogger.Debug("Readability не справился с %s: %v", articleURL, err)
		return text
	}
	if full := strings.TrimSpace(article.TextContent); len(full) > len(text) {
		return full
	}
	return text
}
