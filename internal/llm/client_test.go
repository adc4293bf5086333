package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

func TestCompleteSendsRequestShape(t *testing.T) {
	var got map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"type\":\"chat\",\"chat\":\"hi\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Temperature: DefaultTemperature}, nil)
	msg, err := c.Complete(context.Background(), Request{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hello"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, `{"type":"chat","chat":"hi"}`, msg.Content)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, DefaultModel, got["model"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Len(t, got["messages"], 1)
}

func TestCompleteWithoutJSONModeOmitsFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"plain"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	msg, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "plain", msg.Content)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	_, present := got["response_format"]
	assert.False(t, present)
}

func TestCompleteMissingKey(t *testing.T) {
	c := NewOpenAIClient(Config{}, nil)
	_, err := c.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCompleteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, `LLM error 401: {"error":{"message":"bad key"}}`, err.Error())
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestCompleteMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}
