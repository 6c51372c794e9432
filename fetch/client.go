// Package fetch выполняет HTTP-запросы к источникам данных: повторы с
// линейной задержкой, ротация User-Agent, распаковка ответов и
// ограничение частоты запросов к одному хосту.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tick-monitor/config"
	"tick-monitor/monitoring"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

var fetchLogger = monitoring.NewLogger("Fetcher")

const maxContentSize = 2 * 1024 * 1024 // Максимальный размер ответа 2MB

// Ротация User-Agent: случайный браузерный заголовок на каждую попытку.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
}

// ErrorKind классифицирует ошибки загрузки.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindConnectionReset
	KindHTTPStatus
	KindTooManyRetries
)

// FetchError — типизированная ошибка загрузки страницы.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("тайм-аут запроса %s", e.URL)
	case KindConnectionReset:
		return fmt.Sprintf("соединение сброшено при запросе %s", e.URL)
	case KindHTTPStatus:
		return fmt.Sprintf("неверный статус код %d для %s", e.Status, e.URL)
	case KindTooManyRetries:
		return fmt.Sprintf("превышено число попыток для %s", e.URL)
	}
	return fmt.Sprintf("ошибка запроса %s", e.URL)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsStatus сообщает, является ли ошибка ошибкой HTTP-статуса с данным кодом.
func IsStatus(err error, code int) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindHTTPStatus && fe.Status == code
}

// KindOf возвращает вид ошибки загрузки, если это FetchError.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Client — HTTP-клиент пайплайна с повторами и ограничением частоты.
type Client struct {
	http       *http.Client
	retryCount int
	retryDelay time.Duration
	timeout    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient создает клиент из настроек парсинга.
func NewClient(cfg config.Parsing) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
				DisableCompression:  true, // распаковываем сами, по Content-Encoding и сигнатурам
			},
		},
		retryCount: cfg.RetryCount,
		retryDelay: time.Duration(cfg.RetryDelay) * time.Second,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// limiter возвращает ограничитель частоты для хоста: не чаще двух
// запросов в секунду с маленьким запасом.
func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(500*time.Millisecond), 2)
		c.limiters[host] = lim
	}
	return lim
}

// Get загружает URL с повторами. Возвращает распакованное тело и статус.
// 4xx (кроме 429) прекращает повторы сразу; 429, 5xx и сетевые ошибки
// повторяются с линейно растущей задержкой. Отмена контекста прекращает
// повторы немедленно.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка разбора URL %s: %w", rawURL, err)
	}

	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, 0, err
	}

	var lastErr error
	for attempt := 0; attempt < c.retryCount; attempt++ {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}

		body, status, err := c.doAttempt(ctx, rawURL)
		if err == nil {
			monitoring.IncrementFetchRequests()
			return body, status, nil
		}
		monitoring.IncrementFetchRequestsErrors()
		lastErr = err

		// 4xx кроме 429 не повторяем
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindHTTPStatus &&
			fe.Status >= 400 && fe.Status < 500 && fe.Status != http.StatusTooManyRequests {
			return nil, fe.Status, err
		}
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}

		if attempt < c.retryCount-1 {
			delay := c.retryDelay * time.Duration(attempt+1)
			fetchLogger.Debug("Попытка %d/%d не удалась для %s: %v. Повтор через %v",
				attempt+1, c.retryCount, rawURL, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}

	return nil, 0, &FetchError{Kind: KindTooManyRetries, URL: rawURL, Err: lastErr}
}

func (c *Client) doAttempt(ctx context.Context, rawURL string) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classifyNetError(rawURL, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Тело ошибочного ответа не интересно, но вычитываем для keep-alive
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, &FetchError{Kind: KindHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if len(body) >= maxContentSize {
		fetchLogger.Warn("Контент страницы %s был обрезан из-за превышения лимита %d байт", rawURL, maxContentSize)
	}
	return body, resp.StatusCode, nil
}

func classifyNetError(rawURL string, parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	if strings.Contains(err.Error(), "connection reset") {
		return &FetchError{Kind: KindConnectionReset, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindConnectionReset, URL: rawURL, Err: err}
}

// decodeBody распаковывает тело ответа по Content-Encoding, а при его
// отсутствии определяет сжатие по сигнатуре первых байтов.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	contentEncoding := strings.ToLower(resp.Header.Get("Content-Encoding"))

	switch contentEncoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader

	case "deflate":
		flateReader := flate.NewReader(resp.Body)
		defer flateReader.Close()
		reader = flateReader

	case "br", "brotli":
		reader = brotli.NewReader(resp.Body)

	case "":
		// Некоторые источники сжимают ответ, не выставляя заголовок
		pr := &peekReader{reader: resp.Body}
		switch {
		case pr.isGzip():
			gzipReader, err := gzip.NewReader(pr)
			if err == nil {
				defer gzipReader.Close()
				reader = gzipReader
			} else {
				reader = pr
			}
		case pr.isBrotli():
			reader = brotli.NewReader(pr)
		case pr.isDeflate():
			flateReader := flate.NewReader(pr)
			defer flateReader.Close()
			reader = flateReader
		default:
			reader = pr
		}

	default:
		fetchLogger.Warn("Неизвестный тип сжатия: %s, пробуем обработать как обычные данные", contentEncoding)
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxContentSize))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения body: %w", err)
	}
	return body, nil
}

// peekReader позволяет заглянуть вперед в поток данных для определения типа сжатия
type peekReader struct {
	reader io.Reader
	buf    []byte
	pos    int
}

func (pr *peekReader) Read(p []byte) (n int, err error) {
	if pr.pos < len(pr.buf) {
		n = copy(p, pr.buf[pr.pos:])
		pr.pos += n
		return n, nil
	}
	return pr.reader.Read(p)
}

func (pr *peekReader) peek(n int) []byte {
	for len(pr.buf) < n {
		buf := make([]byte, n-len(pr.buf))
		m, err := pr.reader.Read(buf)
		pr.buf = append(pr.buf, buf[:m]...)
		if err != nil {
			break
		}
	}
	if len(pr.buf) < n {
		return pr.buf
	}
	return pr.buf[:n]
}

func (pr *peekReader) isGzip() bool {
	data := pr.peek(2)
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func (pr *peekReader) isDeflate() bool {
	data := pr.peek(2)
	return len(data) >= 2 && data[0] == 0x78 &&
		(data[1] == 0x01 || data[1] == 0x5e || data[1] == 0x9c || data[1] == 0xda)
}

func (pr *peekReader) isBrotli() bool {
	data := pr.peek(4)
	if len(data) < 4 {
		return false
	}
	return data[0] == 0xce && data[1] == 0xb2 && data[2] == 0xcf && data[3] == 0x81
}
