package cryptsy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingsmao/exchange-gateway/pkg/config"
	"github.com/kingsmao/exchange-gateway/pkg/interfaces"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

// Configuration keys read from the provider.
const (
	KeyAPIURL           = "ApiURL"
	KeyAPIPublicKey     = "ApiPublicKey"
	KeyAPIPrivateKey    = "ApiPrivateKey"
	KeyWsURL            = "WsURL"
	KeyPair             = "Pair"
	KeyMarketID         = "MarketID"
	KeyCurrencies       = "Currencies"
	KeyDepthLimit       = "DepthLimit"
	KeyPositionInterval = "PositionInterval"
	KeySnapshotInterval = "SnapshotInterval"
	KeyPollDelay        = "PollDelay"
	KeyMaxPollAttempts  = "MaxPollAttempts"
	KeyFeedStaleAfter   = "FeedStaleAfter"
	KeyCatalogTTL       = "CatalogTTL"
)

const (
	defaultBasePath         = "/api/v2"
	defaultDepthLimit       = 10
	defaultPositionInterval = 5 * time.Second
	defaultSnapshotInterval = 30 * time.Second
	defaultPollDelay        = time.Second
	defaultMaxPollAttempts  = 600
	defaultReconnectBase    = time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	defaultFeedStaleAfter   = 30 * time.Second
	defaultCatalogTTL       = time.Hour
)

// Config is the typed gateway configuration.
type Config struct {
	Credentials schema.Credentials

	WsURL      string // 为空时不启动实时成交推送
	Pair       schema.CurrencyPair
	MarketID   string // 为空时启动阶段按交易对标签解析
	Currencies []schema.Currency
	DepthLimit int

	PositionInterval time.Duration
	SnapshotInterval time.Duration
	PollDelay        time.Duration
	MaxPollAttempts  int
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	RequestTimeout   time.Duration
	FeedStaleAfter   time.Duration // 超过该时长未收到推送则重连
	CatalogTTL       time.Duration
}

// DefaultConfig returns a Config with every optional field populated.
func DefaultConfig() Config {
	return Config{
		Credentials:      schema.Credentials{BasePath: defaultBasePath},
		Pair:             schema.CurrencyPair{Base: schema.BTC, Quote: schema.USD},
		Currencies:       append([]schema.Currency(nil), schema.DefaultCurrencies...),
		DepthLimit:       defaultDepthLimit,
		PositionInterval: defaultPositionInterval,
		SnapshotInterval: defaultSnapshotInterval,
		PollDelay:        defaultPollDelay,
		MaxPollAttempts:  defaultMaxPollAttempts,
		ReconnectBase:    defaultReconnectBase,
		ReconnectMax:     defaultReconnectMax,
		RequestTimeout:   defaultRequestTimeout,
		FeedStaleAfter:   defaultFeedStaleAfter,
		CatalogTTL:       defaultCatalogTTL,
	}
}

// ConfigFromProvider reads and validates the gateway configuration.
// Missing credentials are the only fatal condition.
func ConfigFromProvider(p interfaces.ConfigProvider) (Config, error) {
	if err := config.Require(p, KeyAPIURL, KeyAPIPublicKey, KeyAPIPrivateKey); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.Credentials.APIHost = strings.TrimRight(p.GetString(KeyAPIURL), "/")
	cfg.Credentials.PublicKey = p.GetString(KeyAPIPublicKey)
	cfg.Credentials.PrivateKey = p.GetString(KeyAPIPrivateKey)

	if v := p.GetString(KeyWsURL); v != "" {
		cfg.WsURL = v
	}
	if v := p.GetString(KeyPair); v != "" {
		pair, err := schema.ParseCurrencyPair(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", KeyPair, err)
		}
		cfg.Pair = pair
	}
	cfg.MarketID = p.GetString(KeyMarketID)
	if v := p.GetString(KeyCurrencies); v != "" {
		cfg.Currencies = schema.ParseCurrencies(v)
	}

	var err error
	if cfg.DepthLimit, err = intKey(p, KeyDepthLimit, cfg.DepthLimit); err != nil {
		return Config{}, err
	}
	if cfg.MaxPollAttempts, err = intKey(p, KeyMaxPollAttempts, cfg.MaxPollAttempts); err != nil {
		return Config{}, err
	}
	if cfg.PositionInterval, err = durationKey(p, KeyPositionInterval, cfg.PositionInterval); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotInterval, err = durationKey(p, KeySnapshotInterval, cfg.SnapshotInterval); err != nil {
		return Config{}, err
	}
	if cfg.PollDelay, err = durationKey(p, KeyPollDelay, cfg.PollDelay); err != nil {
		return Config{}, err
	}
	if cfg.FeedStaleAfter, err = durationKey(p, KeyFeedStaleAfter, cfg.FeedStaleAfter); err != nil {
		return Config{}, err
	}
	if cfg.CatalogTTL, err = durationKey(p, KeyCatalogTTL, cfg.CatalogTTL); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intKey(p interfaces.ConfigProvider, key string, def int) (int, error) {
	v := p.GetString(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected positive integer, got %q", key, v)
	}
	return n, nil
}

func durationKey(p interfaces.ConfigProvider, key string, def time.Duration) (time.Duration, error) {
	v := p.GetString(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: expected positive duration, got %q", key, v)
	}
	return d, nil
}

// withDefaults fills zero fields so hand-built configs in tests stay usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Credentials.BasePath == "" {
		c.Credentials.BasePath = def.Credentials.BasePath
	}
	if c.Pair.IsZero() {
		c.Pair = def.Pair
	}
	if len(c.Currencies) == 0 {
		c.Currencies = def.Currencies
	}
	if c.DepthLimit <= 0 {
		c.DepthLimit = def.DepthLimit
	}
	if c.PositionInterval <= 0 {
		c.PositionInterval = def.PositionInterval
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = def.SnapshotInterval
	}
	if c.PollDelay <= 0 {
		c.PollDelay = def.PollDelay
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = def.MaxPollAttempts
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = def.ReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.FeedStaleAfter <= 0 {
		c.FeedStaleAfter = def.FeedStaleAfter
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = def.CatalogTTL
	}
	return c
}
