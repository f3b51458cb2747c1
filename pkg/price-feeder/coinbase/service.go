package coinbasefeeder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	pricefeeder "github.com/xswap-network/xswapd/pkg/price-feeder"
)

const (
	DefaultBaseURL = "https://api.exchange.coinbase.com"
	sourceName     = "coinbase"
)

type service struct {
	baseURL string
	client  *http.Client
}

// NewService returns a PriceSource reading the ticker endpoint of the
// Coinbase exchange REST API at baseURL.
func NewService(baseURL string, timeout time.Duration) (pricefeeder.PriceSource, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http") {
		return nil, fmt.Errorf("invalid base url %s", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *service) Name() string {
	return sourceName
}

func (s *service) GetPrice(
	ctx context.Context, ticker string,
) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/products/%s/ticker", s.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, pricefeeder.ErrUnknownTicker{
			Source: sourceName, Ticker: ticker,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf(
			"%s: unexpected status %d: %s", sourceName, resp.StatusCode, body,
		)
	}

	msg := struct {
		Price string `json:"price"`
	}{}
	if err := json.Unmarshal(body, &msg); err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid response: %w", sourceName, err)
	}
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid price: %w", sourceName, err)
	}
	return price, nil
}
