package binance

import (
	"strings"
	"time"
)

const (
	MarketSpot    = "spot"
	MarketFutures = "futures"
)

type Config struct {
	Market      string
	RESTBaseURL string
	HTTPTimeout time.Duration
	ProxyURL    string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.Market = strings.ToLower(strings.TrimSpace(out.Market))
	if out.Market != MarketFutures {
		out.Market = MarketSpot
	}
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		if out.Market == MarketFutures {
			out.RESTBaseURL = "https://fapi.binance.com"
		} else {
			out.RESTBaseURL = "https://api.binance.com"
		}
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	return out
}
