package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/logger"
)

// FetchStatus classifies the outcome of a daily series fetch. Every outcome,
// including total failure, is expressed as a status rather than an error.
type FetchStatus string

const (
	StatusSuccess       FetchStatus = "SUCCESS"
	StatusRateLimited   FetchStatus = "RATE_LIMITED"
	StatusCircuitOpen   FetchStatus = "CIRCUIT_OPEN"
	StatusInvalidSymbol FetchStatus = "INVALID_SYMBOL"
	StatusAPIError      FetchStatus = "API_ERROR"
	StatusNoData        FetchStatus = "NO_DATA"
)

// Retryable reports whether the status belongs to the retryable/opaque
// failure class that qualifies for local fallback substitution.
func (s FetchStatus) Retryable() bool {
	return s == StatusRateLimited || s == StatusCircuitOpen || s == StatusAPIError
}

// SeriesFetchResult is the transient result of one daily series fetch:
// a date (YYYY-MM-DD) to close price mapping plus a status.
type SeriesFetchResult struct {
	Series map[string]decimal.Decimal
	Status FetchStatus
}

func emptyResult(status FetchStatus) SeriesFetchResult {
	return SeriesFetchResult{Series: map[string]decimal.Decimal{}, Status: status}
}

// Doer abstracts the HTTP transport so tests can script responses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherConfig carries the provider endpoint and resilience settings for
// the series fetcher.
type FetcherConfig struct {
	BaseURL          string
	APIKey           string
	FetchDeadline    time.Duration
	RetryMaxAttempts int
	RetryWait        time.Duration
}

// SeriesFetcher wraps the Alpha Vantage TIME_SERIES_DAILY call with pacing,
// retry, and circuit-breaking. It never returns an error to its caller.
type SeriesFetcher struct {
	cfg     FetcherConfig
	client  Doer
	pacer   *RequestPacer
	breaker *CircuitBreaker

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSeriesFetcher(cfg FetcherConfig, client Doer, pacer *RequestPacer, breaker *CircuitBreaker) *SeriesFetcher {
	return &SeriesFetcher{
		cfg:     cfg,
		client:  client,
		pacer:   pacer,
		breaker: breaker,
		sleep:   sleepContext,
	}
}

// Alpha Vantage surfaces errors through body fields rather than HTTP status
// in the common case.
type dailySeriesResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

const dailyCloseKey = "4. close"

// fetchFailure is a retryable attempt outcome; terminal outcomes are
// returned as a SeriesFetchResult directly.
type fetchFailure struct {
	status FetchStatus
}

// FetchDailyCloseSeries fetches the compact daily close series for a symbol.
func (f *SeriesFetcher) FetchDailyCloseSeries(ctx context.Context, symbol string) SeriesFetchResult {
	if strings.TrimSpace(f.cfg.APIKey) == "" {
		return emptyResult(StatusNoData)
	}
	if f.pacer.IsDailyLimitReached() {
		return emptyResult(StatusRateLimited)
	}

	requestURL := fmt.Sprintf(
		"%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=compact&apikey=%s",
		f.cfg.BaseURL, url.QueryEscape(symbol), url.QueryEscape(f.cfg.APIKey))

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchDeadline)
	defer cancel()

	lastStatus := StatusAPIError
	for attempt := 1; attempt <= f.cfg.RetryMaxAttempts; attempt++ {
		if !f.breaker.Allow() {
			logger.L.Warn("Circuit breaker open for daily series call", "symbol", symbol)
			return emptyResult(StatusCircuitOpen)
		}

		result, failure := f.attempt(ctx, requestURL, symbol)
		if failure == nil {
			f.breaker.RecordSuccess()
			return result
		}

		lastStatus = failure.status
		logger.L.Warn("Daily series attempt failed",
			"symbol", symbol, "attempt", attempt, "status", string(failure.status))
		if attempt == f.cfg.RetryMaxAttempts {
			break
		}
		if err := f.sleep(ctx, f.cfg.RetryWait); err != nil {
			// Cancellation during a wait degrades gracefully.
			f.breaker.RecordFailure()
			return emptyResult(StatusAPIError)
		}
	}

	f.breaker.RecordFailure()
	logger.L.Warn("Daily series call failed after retries", "symbol", symbol, "status", string(lastStatus))
	return emptyResult(lastStatus)
}

func (f *SeriesFetcher) attempt(ctx context.Context, requestURL, symbol string) (SeriesFetchResult, *fetchFailure) {
	if err := f.pacer.AwaitTurn(ctx); err != nil {
		return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); retryAfter > 0 {
			if err := f.pacer.AwaitRetryAfter(ctx, retryAfter); err != nil {
				return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
			}
		}
		return SeriesFetchResult{}, &fetchFailure{status: StatusRateLimited}
	case resp.StatusCode >= 500:
		return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
	case resp.StatusCode >= 400:
		logger.L.Warn("Daily series request failed", "symbol", symbol, "status", resp.StatusCode)
		return emptyResult(StatusAPIError), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SeriesFetchResult{}, &fetchFailure{status: StatusAPIError}
	}
	return f.extractSeries(body, symbol)
}

func (f *SeriesFetcher) extractSeries(body []byte, symbol string) (SeriesFetchResult, *fetchFailure) {
	var payload dailySeriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.L.Warn("Unable to parse daily series response", "symbol", symbol, "error", err)
		return emptyResult(StatusAPIError), nil
	}

	if payload.ErrorMessage != "" {
		logger.L.Warn("Daily series API returned error", "symbol", symbol, "message", payload.ErrorMessage)
		if strings.Contains(strings.ToLower(payload.ErrorMessage), "invalid api call") {
			return emptyResult(StatusInvalidSymbol), nil
		}
		return emptyResult(StatusAPIError), nil
	}

	if message := firstNonEmpty(payload.Note, payload.Information); message != "" {
		f.pacer.RecordRateLimitMessage(message)
		logger.L.Warn("Daily series API rate limited", "symbol", symbol, "message", message)
		if f.pacer.IsDailyLimitReached() {
			return emptyResult(StatusRateLimited), nil
		}
		return SeriesFetchResult{}, &fetchFailure{status: StatusRateLimited}
	}

	if payload.TimeSeries == nil {
		return emptyResult(StatusNoData), nil
	}

	series := make(map[string]decimal.Decimal, len(payload.TimeSeries))
	for date, fields := range payload.TimeSeries {
		closeStr, ok := fields[dailyCloseKey]
		if !ok {
			continue
		}
		closePrice, err := decimal.NewFromString(closeStr)
		if err != nil {
			logger.L.Warn("Skipping unparseable close price", "symbol", symbol, "date", date, "value", closeStr)
			continue
		}
		series[date] = closePrice
	}
	return SeriesFetchResult{Series: series, Status: StatusSuccess}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms of the
// Retry-After header, clamping negative values to zero.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if until, err := http.ParseTime(header); err == nil {
		d := until.Sub(now)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}
