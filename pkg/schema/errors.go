package schema

import (
	"errors"
	"fmt"
)

// ErrMappingMiss is returned when a currency has no exchange identifier in the
// current mapping. Callers treat it as "skip", not as a failure.
var ErrMappingMiss = errors.New("currency not present in exchange catalog")

// TransportError 网络失败或非 2xx 响应
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 0 表示未收到响应
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: transport failure: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: http status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CatalogParseError 币种目录响应无法解析
type CatalogParseError struct {
	Reason string
	Err    error
}

func (e *CatalogParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed currency catalog: %s: %v", e.Reason, e.Err)
	}
	return "malformed currency catalog: " + e.Reason
}

func (e *CatalogParseError) Unwrap() error { return e.Err }

// ExchangeRejection is a well-formed response with success=false.
type ExchangeRejection struct {
	Endpoint string
	Message  string
}

func (e *ExchangeRejection) Error() string {
	return fmt.Sprintf("exchange rejected %s: %s", e.Endpoint, e.Message)
}
