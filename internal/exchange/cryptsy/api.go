package cryptsy

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kingsmao/exchange-gateway/internal/metrics"
	"github.com/kingsmao/exchange-gateway/pkg/logger"
	"github.com/kingsmao/exchange-gateway/pkg/schema"
)

const (
	headerSign = "Sign"
	headerKey  = "Key"
)

// APIClient signs and sends Cryptsy v2 requests. It is safe for concurrent use.
type APIClient struct {
	http  *resty.Client
	creds schema.Credentials
	nonce *nonceSource
}

func NewAPIClient(creds schema.Credentials, timeout time.Duration) *APIClient {
	if creds.BasePath == "" {
		creds.BasePath = defaultBasePath
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(creds.APIHost, "/") + creds.BasePath).
		SetTimeout(timeout)
	return &APIClient{http: c, creds: creds, nonce: newNonceSource()}
}

// Sign returns the hex HMAC-SHA512 of query under the private key.
func (c *APIClient) Sign(query string) string {
	mac := hmac.New(sha512.New, []byte(c.creds.PrivateKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// buildQuery returns endpoint and the exact query string to sign and send:
// nonce first, then parameters embedded in path, then params.
func buildQuery(nonce int64, path string, params url.Values) (endpoint, query string) {
	endpoint, embedded, _ := strings.Cut(path, "?")

	var b strings.Builder
	b.WriteString("nonce=")
	b.WriteString(strconv.FormatInt(nonce, 10))
	if embedded != "" {
		b.WriteByte('&')
		b.WriteString(embedded)
	}
	if len(params) > 0 {
		b.WriteByte('&')
		b.WriteString(params.Encode())
	}
	return endpoint, b.String()
}

// Send performs one signed request and returns the raw body of a 2xx response.
// Failures are returned as *schema.TransportError and are not retried.
func (c *APIClient) Send(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	endpoint, query := buildQuery(c.nonce.Next(), path, params)

	start := time.Now()
	r, err := c.http.R().
		SetContext(ctx).
		SetHeader(headerSign, c.Sign(query)).
		SetHeader(headerKey, c.creds.PublicKey).
		Execute(method, endpoint+"?"+query)

	label := endpointLabel(endpoint)
	if err != nil {
		metrics.ObserveREST(label, method, 0, time.Since(start))
		logger.Error("Cryptsy REST %s %s 请求失败: %v", method, endpoint, err)
		return nil, &schema.TransportError{Method: method, Path: endpoint, Err: err}
	}
	metrics.ObserveREST(label, method, r.StatusCode(), time.Since(start))

	body := r.Body()
	if !r.IsSuccess() {
		logger.Warn("Cryptsy REST %s %s 返回 %d", method, endpoint, r.StatusCode())
		return nil, &schema.TransportError{Method: method, Path: endpoint, StatusCode: r.StatusCode(), Body: string(body)}
	}

	logger.Debug("Cryptsy REST %s %s 原始响应长度: %d bytes", method, endpoint, len(body))
	return body, nil
}

var idSegment = regexp.MustCompile(`/[0-9]+(/|$)`)

// endpointLabel collapses numeric ids so metric labels stay bounded.
func endpointLabel(endpoint string) string {
	return idSegment.ReplaceAllString(endpoint, "/:id$1")
}
