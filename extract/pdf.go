package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"tick-monitor/config"
	"tick-monitor/facts"
	"tick-monitor/fetch"

	"github.com/ledongthuc/pdf"
)

// Текст короче этого порога считается пустым сканом.
const minPDFTextLen = 50

// PDFBulletin извлекает текст эпидемиологического бюллетеня в PDF по
// настроенному адресу. Бюллетень дает не больше одной записи за обход.
type PDFBulletin struct {
	url     string
	breaker *fetch.CircuitBreaker
}

func NewPDFBulletin(cfg config.Source) *PDFBulletin {
	return &PDFBulletin{
		url:     cfg.URL,
		breaker: fetch.ForSource("pdf-bulletin"),
	}
}

func (p *PDFBulletin) Name() string { return "PDF документ" }

func (p *PDFBulletin) Fetch(ctx context.Context, client *fetch.Client) ([]facts.RawRecord, error) {
	extractLogger.Info("Парсинг PDF бюллетеня: %s", p.url)

	body, err := fetchPage(ctx, client, p.breaker, p.url)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки PDF %s: %w", p.url, err)
	}

	text, err := pdfPlainText(body)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга PDF %s: %w", p.url, err)
	}
	if len(text) < minPDFTextLen {
		extractLogger.Debug("PDF %s не содержит пригодного текста", p.url)
		return nil, nil
	}
	if !facts.HasKeyword(text) {
		extractLogger.Debug("PDF %s не содержит тематических маркеров", p.url)
		return nil, nil
	}

	title := "PDF документ"
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			title = truncateRunes(trimmed, 200)
			break
		}
	}

	// Дата обычно указана в тексте бюллетеня; иначе день обхода
	published := time.Now()
	rec := facts.RawRecord{
		RawText:   truncateRunes(text, 2000),
		Title:     title,
		URL:       p.url,
		SourceTag: p.Name(),
		Published: &published,
	}

	extractLogger.Info("Получена 1 запись из PDF бюллетеня")
	return []facts.RawRecord{rec}, nil
}

// pdfPlainText собирает текст всех страниц документа. Страницы,
// которые не удалось разобрать, пропускаются.
func pdfPlainText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
