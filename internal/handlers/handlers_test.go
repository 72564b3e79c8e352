package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedra_storefront/internal/metrics"
	"cedra_storefront/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubChat struct {
	result services.ChatResult
	prompt string
}

func (s *stubChat) Chat(_ context.Context, prompt string) services.ChatResult {
	s.prompt = prompt
	return s.result
}

func postChat(t *testing.T, h *ChatHandler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	r.POST("/api/chat", h.Chat)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestChatRejectsEmptyPrompt(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	stub := &stubChat{}
	rec, body := postChat(t, NewChatHandler(stub, nil, log), `{"prompt":"   "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body, "error")
	assert.Empty(t, stub.prompt)
}

func TestChatUnconfigured(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	m := metrics.New()
	h := NewChatHandler(services.NewChatProxy(services.ChatConfig{}), m, log)

	rec, body := postChat(t, h, `{"prompt":"Bonjour"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unconfigured", body["status"])
	assert.Equal(t, services.ChatUnconfiguredMessage, body["reply"])
	assert.NotContains(t, body, "error")
	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `cedra_chat_requests_total{status="unconfigured"} 1`)
}

func TestChatFailureIsTagged(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	stub := &stubChat{result: services.ChatResult{Status: services.ChatFailed, Text: "appel IA échoué: statut 500"}}

	rec, body := postChat(t, NewChatHandler(stub, nil, log), `{"prompt":"Quel t-shirt ?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "statut 500")
	assert.Equal(t, "Quel t-shirt ?", stub.prompt)
}

func TestChatReply(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	stub := &stubChat{result: services.ChatResult{Status: services.ChatReply, Text: "Le bleu."}}

	_, body := postChat(t, NewChatHandler(stub, nil, log), `{"prompt":"Quelle couleur ?"}`)
	assert.Equal(t, "reply", body["status"])
	assert.Equal(t, "Le bleu.", body["reply"])
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	for _, tc := range []struct {
		name string
		err  error
		code int
	}{
		{"up", nil, http.StatusOK},
		{"down", errors.New("connection refused"), http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", Health(pinger{tc.err}, log))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
