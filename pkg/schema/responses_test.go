package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"7","c":null}`), &v))
	assert.Equal(t, "42", v.A.String())
	assert.Equal(t, "7", v.B.String())
	assert.Equal(t, "", v.C.String())
}

func TestFlexBool(t *testing.T) {
	cases := map[string]bool{`true`: true, `"1"`: true, `1`: true, `false`: false, `"0"`: false}
	for in, want := range cases {
		var b FlexBool
		require.NoError(t, json.Unmarshal([]byte(in), &b), in)
		assert.Equal(t, want, bool(b), in)
	}
	var b FlexBool
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &b))
}

func TestEnvelopeErrorMessage(t *testing.T) {
	var env CryptsyEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"success":false,"error":["bad nonce","retry"]}`), &env))
	assert.False(t, bool(env.Success))
	assert.Equal(t, "bad nonce; retry", env.ErrorMessage())

	require.NoError(t, json.Unmarshal([]byte(`{"success":"0","error":"Insufficient funds"}`), &env))
	assert.Equal(t, "Insufficient funds", env.ErrorMessage())

	assert.Equal(t, "unknown error", CryptsyEnvelope{}.ErrorMessage())
}

func TestTradeUnixSeconds(t *testing.T) {
	var tr CryptsyTrade
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"1420070400.25","tradeprice":"250.5","quantity":0.1}`), &tr))
	assert.Equal(t, int64(1420070400), tr.UnixSeconds())
	assert.Equal(t, "250.5", tr.TradePrice.String())
	assert.Equal(t, "0.1", tr.Quantity.String())
	assert.Zero(t, CryptsyTrade{}.UnixSeconds())
}

func TestCurrencyMapping(t *testing.T) {
	m := NewCurrencyMapping(map[string]Currency{"1": BTC, "3": USD})

	id, ok := m.IDFor(BTC)
	require.True(t, ok)
	assert.Equal(t, "1", id)

	c, ok := m.CurrencyFor("3")
	require.True(t, ok)
	assert.Equal(t, USD, c)

	_, ok = m.IDFor(EUR)
	assert.False(t, ok)
	_, ok = m.CurrencyFor("99")
	assert.False(t, ok)

	same := NewCurrencyMapping(map[string]Currency{"3": USD, "1": BTC})
	assert.True(t, m.Equal(same))
	assert.False(t, m.Equal(NewCurrencyMapping(map[string]Currency{"1": BTC})))
	assert.Equal(t, 2, m.Len())
}

func TestCurrencyMappingDuplicateCurrencyKeepsLowestID(t *testing.T) {
	m := NewCurrencyMapping(map[string]Currency{"9": BTC, "1": BTC})
	id, ok := m.IDFor(BTC)
	require.True(t, ok)
	assert.Equal(t, "1", id)
	assert.Equal(t, 1, m.Len())
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = fmt.Errorf("fetch: %w", &TransportError{Method: "GET", Path: "/balances", Err: cause})

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "/balances", te.Path)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, te.Error(), "transport failure")

	te = &TransportError{Method: "GET", Path: "/x", StatusCode: 502, Body: "bad gateway"}
	assert.Contains(t, te.Error(), "502")

	var rej *ExchangeRejection
	err = fmt.Errorf("create: %w", &ExchangeRejection{Endpoint: "/order", Message: "Insufficient funds"})
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Insufficient funds", rej.Message)

	var cpe *CatalogParseError
	err = &CatalogParseError{Reason: "missing code", Err: cause}
	require.True(t, errors.As(err, &cpe))
	assert.ErrorIs(t, err, cause)
}
