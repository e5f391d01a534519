package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aivoicefromthevoid/mira/llm"
	"github.com/rs/zerolog"
)

func TestSynchronous(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "I remember the river."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("sk-test", zerolog.Nop(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	temp := 0.8
	resp, err := client.Synchronous(context.Background(), &llm.Request{
		Model:       "claude-haiku-4-5",
		System:      "You are Mira.",
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "What do you remember?")},
		MaxTokens:   500,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Text != "I remember the river." || resp.StopReason != "end_turn" || resp.Usage.OutputTokens != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if body["max_tokens"] != float64(500) || body["temperature"] != 0.8 {
		t.Fatalf("unexpected request body %v", body)
	}
}

func TestSynchronousAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("bad", zerolog.Nop(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	_, err = client.Synchronous(context.Background(), &llm.Request{
		Model:     "claude-haiku-4-5",
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		MaxTokens: 10,
	})
	if !llm.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
