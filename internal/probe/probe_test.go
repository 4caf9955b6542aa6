package probe_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	openai "nimprobe/internal/api/openai/v1"
	"nimprobe/internal/probe"
)

func newTestProbe(t *testing.T, handler http.HandlerFunc, stream bool) (*probe.Probe, *bytes.Buffer) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	p := probe.New(probe.Options{
		Endpoint:    srv.URL,
		Model:       "moonshotai/kimi-k2.5",
		ApiKey:      "test-key",
		Prompt:      "Hello",
		MaxTokens:   64,
		Temperature: 1.0,
		TopP:        1.0,
		Stream:      stream,
		Thinking:    true,
		HTTPClient:  srv.Client(),
		Output:      &out,
	})

	return p, &out
}

func readRequest(t *testing.T, r *http.Request) openai.ChatCompletionRequest {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req openai.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(body, &req))

	return req
}

func TestRunNonStreaming(t *testing.T) {
	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		req := readRequest(t, r)
		assert.Equal(t, "moonshotai/kimi-k2.5", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Hello", req.Messages[0].Content)
		assert.Equal(t, 64, req.MaxTokens)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 1.0, *req.Temperature)
		require.NotNil(t, req.TopP)
		assert.Equal(t, 1.0, *req.TopP)
		assert.False(t, req.Stream)
		assert.Equal(t, map[string]any{"thinking": true}, req.ChatTemplateKwargs)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi"}}]}`)
	}, false)

	require.NoError(t, p.Run(context.Background()))

	assert.Contains(t, out.String(), `"content": "hi"`)
	assert.Contains(t, out.String(), `"choices"`)
}

func TestRunStreamingRelaysLinesInOrder(t *testing.T) {
	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		req := readRequest(t, r)
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, frame := range []string{`data: {"id":1}`, `data: {"id":2}`} {
			fmt.Fprintf(w, "%s\n\n", frame)
			flusher.Flush()
		}
	}, true)

	require.NoError(t, p.Run(context.Background()))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{`data: {"id":1}`, `data: {"id":2}`}, lines)
}

func TestRunStreamingPassesFramesThroughVerbatim(t *testing.T) {
	chunk := openai.ChatCompletionChunk{
		ID:     "chatcmpl-123",
		Object: "chat.completion.chunk",
		Model:  "moonshotai/kimi-k2.5",
		Choices: []openai.StreamChoice{
			{Delta: openai.Delta{Role: "assistant", Content: "Hi"}},
		},
	}
	payload, err := json.Marshal(chunk)
	require.NoError(t, err)

	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, true)

	require.NoError(t, p.Run(context.Background()))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{"data: " + string(payload), "data: [DONE]"}, lines)
}

func TestRunUnauthorized(t *testing.T) {
	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid api key"}`)
	}, false)

	err := p.Run(context.Background())
	require.Error(t, err)

	var statusErr *probe.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)

	// The failed response body must never surface.
	assert.Empty(t, out.String())
	assert.NotContains(t, err.Error(), "invalid api key")
}

func TestRunMalformedBody(t *testing.T) {
	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}, false)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing response body")
	assert.Empty(t, out.String())
}

func TestRunDecodesGzipResponse(t *testing.T) {
	p, out := newTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, `{"choices":[{"message":{"content":"compressed"}}]}`)
		require.NoError(t, gz.Close())
	}, false)

	require.NoError(t, p.Run(context.Background()))

	assert.Contains(t, out.String(), `"content": "compressed"`)
}
