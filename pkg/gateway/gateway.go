// Package gateway talks to the AIRA answering backend.
//
// Every failure to obtain an answer is reported as a *BackendError, whatever
// its cause. Callers that only need "did it work" can treat all of them the
// same way.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Gateway answers a single question.
type Gateway interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AlertAnalyzer is implemented by gateways that can summarize recent alerts.
type AlertAnalyzer interface {
	AnalyzeAlerts(ctx context.Context, days int) (*AlertAnalysis, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, question string) (string, error)

func (f GatewayFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

type AlertAnalysis struct {
	Days     int    `json:"dias" yaml:"dias"`
	Analysis string `json:"analise" yaml:"analise"`
}

type Health struct {
	Message string `json:"mensagem" yaml:"mensagem"`
	Docs    string `json:"docs" yaml:"docs"`
}

const (
	OpAsk     = "ask"
	OpAlerts  = "alerts"
	OpHealth  = "health"
	OpUnknown = "unknown"
)

var (
	ErrStatus        = errors.New("unexpected status")
	ErrMalformedBody = errors.New("malformed response body")
	ErrTooLarge      = errors.New("response too large")
	ErrTransport     = errors.New("transport failure")
	ErrBackendReport = errors.New("backend reported an error")
	ErrTimeout       = errors.New("request timed out")
	ErrCanceled      = errors.New("request canceled")
	ErrInvalidDays   = errors.New("dias must be at least 1")
)

// BackendError is any failure to obtain an answer from the backend.
type BackendError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError wraps err unless it already is a *BackendError.
func NewBackendError(op string, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return &BackendError{Op: op, Err: classify(err)}
}

// AsBackendError converts any error into a *BackendError, nil stays nil.
func AsBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewBackendError(op, err)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	return err
}

func statusError(op string, code int, body []byte) *BackendError {
	text := http.StatusText(code)
	if detail := detailFromBody(body); detail != "" {
		text = detail
	}
	return &BackendError{
		Op:         op,
		StatusCode: code,
		Err:        fmt.Errorf("%w: %s", ErrStatus, text),
	}
}

// IsTimeout reports whether err is a backend timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
