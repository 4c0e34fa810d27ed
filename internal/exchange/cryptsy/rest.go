package cryptsy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const (
	// API endpoints
	apiCurrencies   = "/currencies"
	apiBalances     = "/balances"
	apiMarkets      = "/markets"
	apiOrder        = "/order"
	apiOpenOrders   = "/orders"
	apiTradeHistory = "/tradehistory"
)

// Sender performs a signed request and returns the raw body.
type Sender interface {
	Send(ctx context.Context, method, path string, params url.Values) ([]byte, error)
}

// REST implements interfaces.RESTClient on top of a signing client.
type REST struct {
	api Sender
}

func NewREST(api Sender) *REST {
	return &REST{api: api}
}

// decodeError marks a response that arrived but could not be parsed.
type decodeError struct {
	path string
	err  error
}

func (e *decodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.path, e.err) }
func (e *decodeError) Unwrap() error { return e.err }

// call sends a request, unwraps the {success, error, data} envelope and
// decodes data into out.
func (r *REST) call(ctx context.Context, method, path string, params url.Values, out any) error {
	body, err := r.api.Send(ctx, method, path, params)
	if err != nil {
		return err
	}

	var env schema.CryptsyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &decodeError{path: path, err: err}
	}
	if !env.Success {
		endpoint, _, _ := strings.Cut(path, "?")
		return &schema.ExchangeRejection{Endpoint: endpoint, Message: env.ErrorMessage()}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &decodeError{path: path, err: errors.New("missing data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &decodeError{path: path, err: err}
	}
	return nil
}

func (r *REST) GetCurrencies(ctx context.Context) ([]schema.CryptsyCurrency, error) {
	var out []schema.CryptsyCurrency
	if err := r.call(ctx, http.MethodGet, apiCurrencies, nil, &out); err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return nil, &schema.CatalogParseError{Reason: "currency list", Err: de.err}
		}
		return nil, err
	}
	return out, nil
}

func (r *REST) GetBalances(ctx context.Context) (schema.CryptsyBalances, error) {
	var out schema.CryptsyBalances
	err := r.call(ctx, http.MethodGet, apiBalances, nil, &out)
	return out, err
}

func (r *REST) GetMarkets(ctx context.Context) ([]schema.CryptsyMarket, error) {
	var out []schema.CryptsyMarket
	err := r.call(ctx, http.MethodGet, apiMarkets, nil, &out)
	return out, err
}

func (r *REST) GetMarket(ctx context.Context, marketID string) (schema.CryptsyMarket, error) {
	var out schema.CryptsyMarket
	err := r.call(ctx, http.MethodGet, apiMarkets+"/"+url.PathEscape(marketID), nil, &out)
	return out, err
}

func (r *REST) GetOrderBook(ctx context.Context, marketID string, limit int) (schema.CryptsyOrderBook, error) {
	var out schema.CryptsyOrderBook
	path := fmt.Sprintf("%s/%s/orderbook?limit=%d&type=both", apiMarkets, url.PathEscape(marketID), limit)
	err := r.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (r *REST) GetTradeHistory(ctx context.Context, marketID string) ([]schema.CryptsyTrade, error) {
	var out []schema.CryptsyTrade
	err := r.call(ctx, http.MethodGet, apiMarkets+"/"+url.PathEscape(marketID)+apiTradeHistory, nil, &out)
	return out, err
}

func (r *REST) CreateOrder(ctx context.Context, req schema.CryptsyOrderRequest) (string, error) {
	params := url.Values{}
	params.Set("marketid", req.MarketID)
	params.Set("ordertype", req.OrderType)
	params.Set("quantity", req.Quantity.String())
	params.Set("price", req.Price.String())

	var out schema.CryptsyCreateOrderResult
	if err := r.call(ctx, http.MethodPost, apiOrder, params, &out); err != nil {
		return "", err
	}
	if out.OrderID == "" {
		return "", &decodeError{path: apiOrder, err: errors.New("missing orderid")}
	}
	logger.Debug("Cryptsy 下单成功: market=%s type=%s id=%s", req.MarketID, req.OrderType, out.OrderID)
	return out.OrderID.String(), nil
}

func (r *REST) GetOrder(ctx context.Context, orderID string) (schema.CryptsyOrderDetail, error) {
	var out schema.CryptsyOrderDetail
	err := r.call(ctx, http.MethodGet, apiOrder+"/"+url.PathEscape(orderID), nil, &out)
	return out, err
}

func (r *REST) CancelOrder(ctx context.Context, orderID string) error {
	return r.call(ctx, http.MethodDelete, apiOrder+"/"+url.PathEscape(orderID), nil, nil)
}

func (r *REST) GetOpenOrders(ctx context.Context) ([]schema.CryptsyOrder, error) {
	var out []schema.CryptsyOrder
	err := r.call(ctx, http.MethodGet, apiOpenOrders, nil, &out)
	return out, err
}

func (r *REST) GetAllTradeHistory(ctx context.Context) ([]schema.CryptsyTrade, error) {
	var out []schema.CryptsyTrade
	err := r.call(ctx, http.MethodGet, apiTradeHistory, nil, &out)
	return out, err
}
