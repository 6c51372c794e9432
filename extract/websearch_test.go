package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tick-monitor/config"
	"tick-monitor/fetch"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Страница выдачи: дубль, битая ссылка, чужой хост и ссылка не на статью.
const searchResultsPage = `<html><body>
<a href="/content/1">Осторожно, клещи!</a>
<a href="/content/1">Дубль той же статьи</a>
<a href="/content/404">Удаленная статья</a>
<a href="/news/2">Вниманию жителей</a>
<a href="https://foreign.example/content/9">Чужой сайт</a>
<a href="/about/">Об управлении</a>
</body></html>`

const emptySearchPage = `<html><body><p>Ничего не найдено</p></body></html>`

const fullArticlePage = `<html><head><meta charset="utf-8"></head><body>
<h1>Осторожно, клещи!</h1>
<time datetime="2024-06-10">10 июня 2024</time>
<div class="content">
В Тюменской области продолжается сезон активности клещей. За прошедшую неделю
в медицинские организации области обратился 451 человек, пострадавший от
укусов клещей, в том числе 98 детей. Зарегистрировано 5 случаев клещевого
энцефалита, пострадавшим оказывается необходимая помощь.
<script>var counter = 1;</script>
</div>
</body></html>`

const fallbackArticlePage = `<html><body>
<h2 class="title">Вниманию жителей</h2>
<span class="news-date">10.06.2024</span>
<p>Короткий анонс без основного блока статьи.</p>
</body></html>`

func newSearchServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		switch {
		case r.URL.Path == "/search/":
			if r.URL.Query().Get("page") == "1" {
				w.Write([]byte(searchResultsPage))
				return
			}
			w.Write([]byte(emptySearchPage))
		case r.URL.Path == "/content/1":
			w.Write([]byte(fullArticlePage))
		case r.URL.Path == "/news/2":
			w.Write([]byte(fallbackArticlePage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), paths...)
	}
}

func TestWebSearchFetch(t *testing.T) {
	server, requested := newSearchServer(t)

	ws := NewWebSearch(config.Source{BaseURL: server.URL})
	records, err := ws.Fetch(context.Background(), testParsingClient())

	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Осторожно, клещи!", first.Title)
	assert.Equal(t, "2024-06-10", first.CandidateDate)
	assert.Equal(t, server.URL+"/content/1", first.URL)
	assert.Equal(t, "Роспотребнадзор (поиск)", first.SourceTag)
	assert.Contains(t, first.RawText, "обратился 451 человек")
	assert.NotContains(t, first.RawText, "var counter")

	second := records[1]
	assert.Equal(t, "Вниманию жителей", second.Title)
	assert.Equal(t, "10.06.2024", second.CandidateDate)
	assert.Equal(t, server.URL+"/news/2", second.URL)
	assert.Contains(t, second.RawText, "Короткий анонс")

	// Две страницы выдачи и три статьи, из них одна недоступна. Дубль,
	// чужой хост и ссылка не на статью не запрашивались.
	paths := requested()
	assert.Len(t, paths, 5)
	assert.NotContains(t, paths, "/about/")
}

func TestWebSearchMaxItems(t *testing.T) {
	server, _ := newSearchServer(t)

	ws := NewWebSearch(config.Source{BaseURL: server.URL, MaxItems: 1})
	records, err := ws.Fetch(context.Background(), testParsingClient())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, server.URL+"/content/1", records[0].URL)
}

func TestWebSearchSearchPageUnavailable(t *testing.T) {
	defer fetch.ForSource("rospotrebnadzor-web").Reset()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	ws := NewWebSearch(config.Source{BaseURL: server.URL})
	records, err := ws.Fetch(context.Background(), testParsingClient())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ошибка загрузки поисковой выдачи")
	assert.Empty(t, records)
}

func TestWebSearchCustomSearchURL(t *testing.T) {
	ws := NewWebSearch(config.Source{
		BaseURL:   "https://example.ru",
		SearchURL: "https://example.ru/poisk?text=кле",
	})

	if ws.searchURL != "https://example.ru/poisk?text=кле" {
		t.Errorf("Ожидался заданный адрес поиска, получено '%s'", ws.searchURL)
	}
	if ws.maxItems != defaultWebMaxItems {
		t.Errorf("Ожидался лимит по умолчанию %d, получено %d", defaultWebMaxItems, ws.maxItems)
	}
}

func TestArticleDate(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"атрибут datetime", `<time datetime="2024-06-10T12:00:00">вчера</time>`, "2024-06-10T12:00:00"},
		{"текст элемента time", `<time>10 июня 2024</time>`, "10 июня 2024"},
		{"элемент с датой в классе", `<div class="article-date">09.06.2024</div>`, "09.06.2024"},
		{"мета-тег published_time", `<meta property="article:published_time" content="2024-06-08">`, "2024-06-08"},
		{"мета-тег с датой в имени", `<meta name="publish-date" content="2024-06-07"><meta name="viewport" content="width=device-width">`, "2024-06-07"},
		{"даты нет", `<p>просто текст</p>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, articleDate(doc))
		})
	}
}
