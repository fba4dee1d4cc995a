package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(chunks <-chan string, errs <-chan error) ([]string, error) {
	var out []string
	for c := range chunks {
		out = append(out, c)
	}
	return out, <-errs
}

func TestOpenRouterChat_SendsRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "codemate", r.Header.Get("X-Title"))

		var req openRouterChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-3.5-turbo", req.Model)
		assert.False(t, req.Stream)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, RoleSystem, req.Messages[0].Role)
		}

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Fix: use range()."}}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL+"/api/v1/", "sk-test", "openai/gpt-3.5-turbo", "", "codemate")
	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fix: use range().", reply)
}

func TestOpenRouterChat_MissingChoicesKeepsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk-bad", "m", "", "")
	_, err := p.Chat(context.Background(), nil)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusUnauthorized, respErr.Status)
	assert.Equal(t, `{"error":{"message":"No auth credentials found","code":401}}`, respErr.Raw)
}

func TestOpenRouterChat_MissingKeySendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, " ", "m", "", "")
	_, err := p.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = drain(p.StreamChat(context.Background(), nil))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, hits.Load())
}

func TestOpenRouterStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openRouterChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"one "}}]}`+"\n\n")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"two"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	got, err := drain(p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two"}, got)
}

func TestOpenRouterStreamChat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	got, err := drain(p.StreamChat(context.Background(), nil))
	assert.Empty(t, got)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusTooManyRequests, respErr.Status)
	assert.Equal(t, "rate limited", respErr.Raw)
}
