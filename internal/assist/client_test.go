package assist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/codepad/internal/appconfig"
	"pkt.systems/codepad/schema"
)

func TestNewDisabledWithoutEndpoint(t *testing.T) {
	if client := New(appconfig.AssistConfig{}, nil); client != nil {
		t.Fatalf("expected nil client without endpoint")
	}
	var client *Client
	if _, err := client.Complete(context.Background(), "hi", schema.BufferSnapshot{}); !errors.Is(err, schema.ErrAssistantUnavailable) {
		t.Fatalf("expected unavailable from nil client, got %v", err)
	}
}

func TestCompleteSendsBuffersAndAuth(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "use grid"}},
			},
		})
	}))
	defer srv.Close()

	t.Setenv("TEST_ASSIST_KEY", "sekret")
	client := New(appconfig.AssistConfig{
		Endpoint:  srv.URL,
		APIKeyEnv: "TEST_ASSIST_KEY",
		Model:     "test-model",
	}, nil)
	if client == nil {
		t.Fatalf("expected client")
	}

	reply, err := client.Complete(context.Background(), "center a div", schema.BufferSnapshot{HTML: "<div></div>", CSS: ".a{}", JS: "x()"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "use grid" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if auth != "Bearer sekret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.Model != "test-model" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	user := got.Messages[1].Content
	for _, want := range []string{"center a div", "```html", "<div></div>", "```css", ".a{}", "```js", "x()"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(appconfig.AssistConfig{Endpoint: srv.URL}, nil)
	_, err := client.Complete(context.Background(), "hi", schema.BufferSnapshot{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := New(appconfig.AssistConfig{Endpoint: srv.URL}, nil)
	if _, err := client.Complete(context.Background(), "hi", schema.BufferSnapshot{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
