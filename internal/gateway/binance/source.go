package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sigtrade/internal/logger"
	"sigtrade/internal/market"
	symbolpkg "sigtrade/internal/pkg/symbol"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	maxSpotLimit    = 1000
	maxFuturesLimit = 1500
)

var sourceLog = logger.Component("binance")

type kline struct {
	openTime  int64
	closeTime int64
	open      string
	high      string
	low       string
	close     string
	volume    string
	trades    int64
}

type klineFetcher func(ctx context.Context, symbol, interval string, limit int) ([]kline, error)

// Source 基于 go-binance SDK 实现 market.Source，只读公开K线接口，无需 API key。
type Source struct {
	cfg   Config
	fetch klineFetcher
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	src := &Source{cfg: final}
	if final.Market == MarketFutures {
		client := futures.NewClient("", "")
		client.BaseURL = final.RESTBaseURL
		client.HTTPClient = httpClient
		src.fetch = futuresKlines(client)
	} else {
		client := gobinance.NewClient("", "")
		client.BaseURL = final.RESTBaseURL
		client.HTTPClient = httpClient
		src.fetch = spotKlines(client)
	}
	return src, nil
}

func spotKlines(client *gobinance.Client) klineFetcher {
	return func(ctx context.Context, symbol, interval string, limit int) ([]kline, error) {
		kls, err := client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]kline, 0, len(kls))
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, kline{
				openTime: kl.OpenTime, closeTime: kl.CloseTime,
				open: kl.Open, high: kl.High, low: kl.Low, close: kl.Close, volume: kl.Volume,
				trades: kl.TradeNum,
			})
		}
		return out, nil
	}
}

func futuresKlines(client *futures.Client) klineFetcher {
	return func(ctx context.Context, symbol, interval string, limit int) ([]kline, error) {
		kls, err := client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]kline, 0, len(kls))
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, kline{
				openTime: kl.OpenTime, closeTime: kl.CloseTime,
				open: kl.Open, high: kl.High, low: kl.Low, close: kl.Close, volume: kl.Volume,
				trades: kl.TradeNum,
			})
		}
		return out, nil
	}
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if s == nil || s.fetch == nil {
		return nil, fmt.Errorf("binance source not initialized")
	}
	maxLimit := maxSpotLimit
	if s.cfg.Market == MarketFutures {
		maxLimit = maxFuturesLimit
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxLimit {
		sourceLog.Warnf("limit %d exceeds %s maximum, capped to %d", limit, s.cfg.Market, maxLimit)
		limit = maxLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// Binance requires symbols without slashes (e.g., ETHUSDT)
	cleanSymbol := symbolpkg.ToBinance(symbol)

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.fetch(ctx, cleanSymbol, interval, limit)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		out = append(out, market.Candle{
			OpenTime:  kl.openTime,
			CloseTime: kl.closeTime,
			Open:      parseFloat(kl.open),
			High:      parseFloat(kl.high),
			Low:       parseFloat(kl.low),
			Close:     parseFloat(kl.close),
			Volume:    parseFloat(kl.volume),
			Trades:    kl.trades,
		})
	}
	return out, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
