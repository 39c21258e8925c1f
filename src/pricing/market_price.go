package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/temadison/stockdash/backend/src/logger"
)

// MarketPriceService resolves a best-effort live quote for a symbol, used as
// a secondary price source when no stored close covers the requested day.
// Quotes are cached in-process so repeated valuation calls within the cache
// window cost a single provider call per symbol.
type MarketPriceService struct {
	baseURL string
	apiKey  string
	client  Doer
	pacer   *RequestPacer
	cache   *gocache.Cache
}

func NewMarketPriceService(baseURL, apiKey string, client Doer, pacer *RequestPacer, cacheDuration time.Duration) *MarketPriceService {
	return &MarketPriceService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		pacer:   pacer,
		cache:   gocache.New(cacheDuration, 2*cacheDuration),
	}
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
}

const quotePriceKey = "05. price"

// GetLivePrice returns the current quote for a symbol, or false when no
// quote could be obtained. Lookups are best effort: any provider failure is
// logged and swallowed so valuation can fall through to the next source.
func (s *MarketPriceService) GetLivePrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	symbol = Normalize(symbol)
	if cached, found := s.cache.Get(symbol); found {
		return cached.(decimal.Decimal), true
	}
	if strings.TrimSpace(s.apiKey) == "" || s.pacer.IsDailyLimitReached() {
		return decimal.Zero, false
	}
	if err := s.pacer.AwaitTurn(ctx); err != nil {
		return decimal.Zero, false
	}

	requestURL := fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		s.baseURL, url.QueryEscape(symbol), url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return decimal.Zero, false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		logger.L.Warn("Live quote request failed", "symbol", symbol, "error", err)
		return decimal.Zero, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.L.Warn("Live quote request rejected", "symbol", symbol, "status", resp.StatusCode)
		return decimal.Zero, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, false
	}
	var payload globalQuoteResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.L.Warn("Unable to parse live quote response", "symbol", symbol, "error", err)
		return decimal.Zero, false
	}
	raw, ok := payload.GlobalQuote[quotePriceKey]
	if !ok || raw == "" {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		logger.L.Warn("Unparseable live quote price", "symbol", symbol, "value", raw)
		return decimal.Zero, false
	}

	s.cache.Set(symbol, price, gocache.DefaultExpiration)
	return price, true
}
