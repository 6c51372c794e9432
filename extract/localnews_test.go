package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tick-monitor/config"
	"tick-monitor/fetch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Лента местного сайта: тематическая новость, новость не по теме и блок
// без заголовка.
const localNewsPage = `<html><body>
<article class="news-item">
  <h2 class="title">Осторожно, клещи проснулись</h2>
  <span class="date">05.06.2024</span>
  <div class="text">В городских парках зафиксированы первые укусы, обработка территорий начнется на этой неделе.</div>
  <a href="/news/5">читать</a>
</article>
<article class="news-item">
  <h2 class="title">Городской фестиваль еды</h2>
  <span class="date">06.06.2024</span>
  <div class="text">Программа фестиваля.</div>
</article>
<article class="news-item">
  <p>139 лет назад основана городская библиотека</p>
</article>
</body></html>`

func TestLocalNewsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(localNewsPage))
	}))
	defer server.Close()

	ln := NewLocalNews(config.Source{BaseURL: server.URL})
	records, err := ln.Fetch(context.Background(), testParsingClient())

	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Осторожно, клещи проснулись", rec.Title)
	assert.Equal(t, "05.06.2024", rec.CandidateDate)
	assert.Contains(t, rec.RawText, "первые укусы")
	assert.Equal(t, server.URL+"/news/5", rec.URL)
	assert.Equal(t, "Местные новости ("+server.URL+")", rec.SourceTag)
	require.NotNil(t, rec.Published)
}

func TestLocalNewsFrontPageFallback(t *testing.T) {
	defer fetch.ForSource("local-news").Reset()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Поисковые URL не поддерживаются, работает только главная
		if r.URL.Path != "/" || r.URL.RawQuery != "" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(localNewsPage))
	}))
	defer server.Close()

	ln := NewLocalNews(config.Source{BaseURL: server.URL})
	records, err := ln.Fetch(context.Background(), testParsingClient())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Осторожно, клещи проснулись", records[0].Title)
}

func TestLocalNewsDateAttributePreferred(t *testing.T) {
	page := `<article class="news-item">
<h2 class="title">Сезон клещей открыт</h2>
<time class="published" datetime="2024-06-07">7 июня</time>
<div class="text">Подробности в материале.</div>
</article>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	ln := NewLocalNews(config.Source{BaseURL: server.URL})
	records, err := ln.Fetch(context.Background(), testParsingClient())

	require.NoError(t, err)
	require.Len(t, records, 1)
	// Машиночитаемый атрибут важнее текста элемента
	assert.Equal(t, "2024-06-07", records[0].CandidateDate)
}

func TestLocalNewsAllUnavailable(t *testing.T) {
	defer fetch.ForSource("local-news").Reset()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	ln := NewLocalNews(config.Source{BaseURL: server.URL})
	_, err := ln.Fetch(context.Background(), testParsingClient())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "не удалось получить доступ к")
}
