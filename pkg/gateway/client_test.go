package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, options ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, options...)
	require.NoError(t, err)
	return c
}

func TestClientAskPostsQuestion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Qual o nível do rio?", req["pergunta"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"pergunta": req["pergunta"],
			"resposta": "12.3m",
		})
	})

	answer, err := c.Ask(context.Background(), "Qual o nível do rio?")
	require.NoError(t, err)
	require.Equal(t, "12.3m", answer)
}

func TestClientAskErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		is      error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"detail":"boom"}`))
			},
			status: http.StatusInternalServerError,
			is:     ErrStatus,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			status: http.StatusNotFound,
			is:     ErrStatus,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			status: http.StatusOK,
			is:     ErrMalformedBody,
		},
		{
			name: "missing resposta",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pergunta":"x"}`))
			},
			is: ErrMalformedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Ask(context.Background(), "x")
			require.Error(t, err)

			var be *BackendError
			require.True(t, errors.As(err, &be))
			require.Equal(t, OpAsk, be.Op)
			require.Equal(t, tt.status, be.StatusCode)
			require.ErrorIs(t, err, tt.is)
		})
	}
}

func TestClientAskStatusUsesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"modelo indisponível"}`))
	})
	_, err := c.Ask(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "modelo indisponível")
	require.Contains(t, err.Error(), "502")
}

func TestClientAskTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), "x")
	require.ErrorIs(t, err, ErrTransport)
	var be *BackendError
	require.True(t, errors.As(err, &be))
}

func TestClientAskTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond))
	defer close(release)

	_, err := c.Ask(context.Background(), "x")
	require.Error(t, err)
	require.True(t, IsTimeout(err))
}

func TestClientAskTooLarge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resposta":"`))
		_, _ = w.Write([]byte(strings.Repeat("a", MaxResponseSize)))
		_, _ = w.Write([]byte(`"}`))
	})
	_, err := c.Ask(context.Background(), "x")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestClientAnalyzeAlerts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/analise-alertas", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("dias"))
		_, _ = w.Write([]byte(`{"dias":3,"analise":"Rio estável."}`))
	})

	a, err := c.AnalyzeAlerts(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 3, a.Days)
	require.Equal(t, "Rio estável.", a.Analysis)
}

func TestClientAnalyzeAlertsReportedError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"erro":"planilha ausente"}`))
	})

	_, err := c.AnalyzeAlerts(context.Background(), 7)
	require.ErrorIs(t, err, ErrBackendReport)
	require.Contains(t, err.Error(), "planilha ausente")

	_, err = c.AnalyzeAlerts(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidDays)
}

func TestClientHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`{"mensagem":"API AIRA rodando","docs":"/docs"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "API AIRA rodando", h.Message)
	require.Equal(t, "/docs", h.Docs)
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	require.Error(t, err)
	_, err = NewClient("http://")
	require.Error(t, err)

	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.BaseURL())

	c, err = NewClient("http://example.com/api/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/api/chat", c.endpoint(chatPath, nil))
}

func TestNewBackendErrorKeepsExisting(t *testing.T) {
	orig := &BackendError{Op: OpAsk, StatusCode: 500, Err: ErrStatus}
	require.Same(t, orig, NewBackendError(OpAlerts, errors.Wrap(orig, "wrapped")))
	require.Nil(t, AsBackendError(OpAsk, nil))

	err := NewBackendError(OpAsk, context.Canceled)
	require.ErrorIs(t, err, ErrCanceled)
}
