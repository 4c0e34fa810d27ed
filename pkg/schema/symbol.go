package schema

import (
	"fmt"
	"strings"
)

// CurrencyPair 表示一个交易对，例如 BTC/USD
type CurrencyPair struct {
	Base  Currency `json:"base"`  // 基础币种
	Quote Currency `json:"quote"` // 计价币种
}

// NewCurrencyPair 创建交易对，币种统一转为大写
func NewCurrencyPair(base, quote string) CurrencyPair {
	return CurrencyPair{
		Base:  Currency(strings.ToUpper(strings.TrimSpace(base))),
		Quote: Currency(strings.ToUpper(strings.TrimSpace(quote))),
	}
}

// String 返回交易对的字符串表示
func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// IsZero reports whether the pair is unset.
func (p CurrencyPair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}

// ParseCurrencyPair 解析 [base]/[quote] 格式，也接受 base_quote 与 base-quote
func ParseCurrencyPair(pairStr string) (CurrencyPair, error) {
	pairStr = strings.TrimSpace(pairStr)
	base, quote, err := parseBaseQuote(pairStr)
	if err != nil {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair format: %w", err)
	}
	return NewCurrencyPair(base, quote), nil
}

// parseBaseQuote 解析 [base]/[quote] 部分
func parseBaseQuote(s string) (base, quote string, err error) {
	var parts []string
	for _, sep := range []string{"/", "_", "-"} {
		if strings.Contains(s, sep) {
			parts = strings.Split(s, sep)
			break
		}
	}
	if len(parts) != 2 {
		return "", "", fmt.Errorf("must be [base]/[quote], got: %s", s)
	}

	base = strings.TrimSpace(parts[0])
	quote = strings.TrimSpace(parts[1])
	if base == "" {
		return "", "", fmt.Errorf("base cannot be empty in: %s", s)
	}
	if quote == "" {
		return "", "", fmt.Errorf("quote cannot be empty in: %s", s)
	}
	return base, quote, nil
}

// ParseCurrencies 解析逗号分隔的币种列表，去重并保持顺序
func ParseCurrencies(list string) []Currency {
	seen := make(map[Currency]struct{})
	var out []Currency
	for _, item := range strings.Split(list, ",") {
		c := Currency(strings.ToUpper(strings.TrimSpace(item)))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
