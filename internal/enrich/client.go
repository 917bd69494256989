package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"watcher/internal/model"
)

// DefaultBaseURL is the Binance USDⓈ-M futures REST endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

// MarketDataClient fetches the market context used to enrich a signal.
type MarketDataClient interface {
	Depth(ctx context.Context, symbol string, limit int) (*model.OrderBook, error)
	OpenInterest(ctx context.Context, symbol string) (*model.OpenInterest, error)
}

// BinanceFuturesClient implements MarketDataClient against the Binance futures REST API.
type BinanceFuturesClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBinanceFuturesClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewBinanceFuturesClient(baseURL string, timeout time.Duration, logger *slog.Logger) *BinanceFuturesClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BinanceFuturesClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type depthResponse struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// Depth returns the top limit levels of the order book.
func (c *BinanceFuturesClient) Depth(ctx context.Context, symbol string, limit int) (*model.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var resp depthResponse
	if err := c.get(ctx, "/fapi/v1/depth", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch depth: %w", err)
	}

	return &model.OrderBook{
		Symbol: symbol,
		Bids:   parseLevels(resp.Bids),
		Asks:   parseLevels(resp.Asks),
	}, nil
}

// OpenInterest returns the current open interest in base units.
func (c *BinanceFuturesClient) OpenInterest(ctx context.Context, symbol string) (*model.OpenInterest, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp openInterestResponse
	if err := c.get(ctx, "/fapi/v1/openInterest", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch open interest: %w", err)
	}

	value, err := strconv.ParseFloat(resp.OpenInterest, 64)
	if err != nil {
		return nil, fmt.Errorf("parse open interest %q: %w", resp.OpenInterest, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("parse open interest %q: not finite", resp.OpenInterest)
	}

	return &model.OpenInterest{Symbol: resp.Symbol, Value: value, Time: resp.Time}, nil
}

func (c *BinanceFuturesClient) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug("BinanceFuturesClient: calling API", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("binance returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseLevels converts [["price","qty"], ...]; unparseable numbers become 0.
func parseLevels(raw [][]string) []model.PriceQty {
	levels := make([]model.PriceQty, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		levels = append(levels, model.PriceQty{Price: model.ParseNumber(lvl[0]), Qty: model.ParseNumber(lvl[1])})
	}
	return levels
}
