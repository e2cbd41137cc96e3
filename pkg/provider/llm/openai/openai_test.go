package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/storymix/pkg/provider/llm"
)

// TestConvertMessage_Roles checks that every supported role converts.
func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()
	sys, err := convertMessage(llm.Message{Role: "system", Content: "x"})
	if err != nil || sys.OfSystem == nil {
		t.Errorf("system: OfSystem not set (err %v)", err)
	}
	usr, err := convertMessage(llm.Message{Role: "user", Content: "x"})
	if err != nil || usr.OfUser == nil {
		t.Errorf("user: OfUser not set (err %v)", err)
	}
	asst, err := convertMessage(llm.Message{Role: "assistant", Content: "x"})
	if err != nil || asst.OfAssistant == nil {
		t.Errorf("assistant: OfAssistant not set (err %v)", err)
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model       string
		wantContext int
		wantJSON    bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"gpt-4.1", 1_047_576, true},
		{"gpt-4", 8_192, false},
		{"gpt-3.5-turbo", 16_385, true},
		{"o3-mini", 200_000, true},
		{"my-custom-model", 128_000, true},
	}
	for _, tc := range tests {
		caps := modelCapabilities(tc.model)
		if caps.ContextWindow != tc.wantContext {
			t.Errorf("%s: context window = %d, want %d", tc.model, caps.ContextWindow, tc.wantContext)
		}
		if caps.SupportsJSONMode != tc.wantJSON {
			t.Errorf("%s: json mode = %v, want %v", tc.model, caps.SupportsJSONMode, tc.wantJSON)
		}
		if caps.MaxOutputTokens <= 0 {
			t.Errorf("%s: expected MaxOutputTokens > 0", tc.model)
		}
	}
}

// TestComplete_JSONMode checks the request sent to the API and the parsed reply.
func TestComplete_JSONMode(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 0, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"segments\":[]}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Return JSON.",
		Messages:     []llm.Message{{Role: "user", Content: "Once upon a time."}},
		JSON:         true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"segments":[]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}

	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want system + user", len(msgs))
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "x"}},
	}); err == nil {
		t.Fatal("expected error")
	}
}

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	t.Parallel()
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// replyServer answers every chat completion with a single choice.
func replyServer(t *testing.T, finish, message string) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "chatcmpl-2", "object": "chat.completion", "created": 0, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "`+finish+`", "message": `+message+`}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}}`)
	}))
	t.Cleanup(srv.Close)
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestComplete_RejectsUnusableReplies(t *testing.T) {
	t.Parallel()
	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "The door creaked."}}}

	p := replyServer(t, "length", `{"role": "assistant", "content": "{\"segments\": [{\"text\""}`)
	if _, err := p.Complete(context.Background(), req); !errors.Is(err, llm.ErrTruncated) {
		t.Errorf("truncated reply: got %v, want ErrTruncated", err)
	}

	p = replyServer(t, "stop", `{"role": "assistant", "content": null, "refusal": "I can't help with that."}`)
	if _, err := p.Complete(context.Background(), req); err == nil {
		t.Error("refusal: got nil error")
	}
}

func TestBuildParams_JSONOnlyWhereSupported(t *testing.T) {
	t.Parallel()
	for model, want := range map[string]bool{"gpt-4o": true, "gpt-4-0613": false} {
		p, err := New("sk-test", model)
		if err != nil {
			t.Fatal(err)
		}
		params, err := p.buildParams(llm.CompletionRequest{
			Messages: []llm.Message{{Role: "user", Content: "x"}},
			JSON:     true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := params.ResponseFormat.OfJSONObject != nil; got != want {
			t.Errorf("%s: json response format = %v, want %v", model, got, want)
		}
	}
}
