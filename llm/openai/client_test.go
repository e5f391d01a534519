package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aivoicefromthevoid/mira/llm"
)

func TestSynchronous(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"object": "chat.completion",
			"model": "mistralai/mistral-7b-instruct:free",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello, traveler."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{
		APIKey:  "or-key",
		BaseURL: srv.URL,
		Model:   "mistralai/mistral-7b-instruct:free",
		Referer: "https://mira.example",
		Title:   "Mira",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	temp := 0.8
	resp, err := client.Synchronous(context.Background(), &llm.Request{
		System:      "You are Mira.",
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hi")},
		MaxTokens:   500,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}

	if resp.Text != "Hello, traveler." || resp.Model != "mistralai/mistral-7b-instruct:free" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if got.Model != "mistralai/mistral-7b-instruct:free" || got.MaxTokens != 500 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hi" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if headers.Get("Authorization") != "Bearer or-key" {
		t.Fatalf("missing bearer token, got %q", headers.Get("Authorization"))
	}
	if headers.Get("HTTP-Referer") != "https://mira.example" || headers.Get("X-Title") != "Mira" {
		t.Fatalf("missing attribution headers: %v", headers)
	}
}

func TestSynchronousErrors(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, llm.IsAuthError},
		{http.StatusTooManyRequests, llm.IsRateLimitError},
		{http.StatusBadGateway, func(err error) bool { return llm.TypeOf(err) == llm.ErrorTypeProvider }},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error": {"message": "nope", "code": 0}}`))
		}))

		client, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		_, err = client.Synchronous(context.Background(), &llm.Request{
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hi")},
		})
		srv.Close()

		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error classification %v (%s)", tc.status, err, llm.TypeOf(err))
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
