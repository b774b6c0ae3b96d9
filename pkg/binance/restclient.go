package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExchangeInfo fetches the futures symbol list with trading status.
func (c *RESTClient) ExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	endpoint := c.baseURL + exchangeInfoPath

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("binance error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("binance error: status %d: %s", resp.StatusCode, body)
	}

	var info ExchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// IsTrading reports whether symbol is listed with status TRADING.
func (c *RESTClient) IsTrading(ctx context.Context, symbol string) (bool, error) {
	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range info.Symbols {
		if strings.EqualFold(s.Symbol, symbol) {
			return s.Status == StatusTrading, nil
		}
	}
	return false, nil
}
