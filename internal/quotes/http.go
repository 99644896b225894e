package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// HTTPProvider fetches quotes from an external market data API. The API is
// expected to answer GET {base}/quote?symbol=X with a JSON body carrying
// symbol, company name, and latest price, and 404 for unknown tickers.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given API base URL.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type quotePayload struct {
	Symbol      string      `json:"symbol"`
	CompanyName string      `json:"companyName"`
	LatestPrice json.Number `json:"latestPrice"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(strings.ToUpper(symbol)), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("quote fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownSymbol
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("symbol", symbol).Msg("unexpected quote response")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if payload.Symbol == "" || payload.LatestPrice == "" {
		return nil, ErrUnknownSymbol
	}

	price, err := decimal.NewFromString(payload.LatestPrice.String())
	if err != nil {
		return nil, fmt.Errorf("%w: bad price %q", ErrUnavailable, payload.LatestPrice)
	}

	return &Quote{
		Symbol:     strings.ToUpper(payload.Symbol),
		Name:       payload.CompanyName,
		Price:      price,
		ReceivedAt: time.Now(),
	}, nil
}
