package appointments

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type stubChatClient struct {
	reply string
	err   error
	calls int
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.reply}},
		},
	}, nil
}

func TestNormalizePhrasePattern(t *testing.T) {
	n := NewNormalizer(nil, "", nil)

	result := n.Normalize(context.Background(), "August 24, 2025 at 2:00 PM")
	if !result.Valid {
		t.Fatalf("expected valid result, got hint %q", result.Hint)
	}
	if result.Canonical != "2025-08-24 14:00:00" {
		t.Fatalf("unexpected canonical %q", result.Canonical)
	}
}

func TestNormalizePhrasePatternIsIdempotent(t *testing.T) {
	n := NewNormalizer(nil, "", nil)

	first := n.Normalize(context.Background(), "August 24, 2025 at 2:00 PM")
	for i := 0; i < 5; i++ {
		again := n.Normalize(context.Background(), "August 24, 2025 at 2:00 PM")
		if again != first {
			t.Fatalf("normalization not idempotent: %+v vs %+v", again, first)
		}
	}
}

func TestNormalizeISOPassthrough(t *testing.T) {
	chat := &stubChatClient{reply: "should not be called"}
	n := NewNormalizer(chat, "", nil)

	result := n.Normalize(context.Background(), "2025-08-24 14:00:00")
	if !result.Valid || result.Canonical != "2025-08-24 14:00:00" {
		t.Fatalf("expected verbatim passthrough, got %+v", result)
	}
	if chat.calls != 0 {
		t.Fatalf("model fallback must not run for ISO input")
	}
}

func TestNormalizeModelFallbackValid(t *testing.T) {
	chat := &stubChatClient{reply: "VALID_DATETIME: 2025-08-25 14:00:00"}
	n := NewNormalizer(chat, "", nil)

	result := n.Normalize(context.Background(), "tomorrow at 2pm")
	if !result.Valid || result.Canonical != "2025-08-25 14:00:00" {
		t.Fatalf("expected model-resolved timestamp, got %+v", result)
	}
}

func TestNormalizeModelFallbackInvalid(t *testing.T) {
	chat := &stubChatClient{reply: "INVALID_DATETIME: Please provide date and time in the expected format"}
	n := NewNormalizer(chat, "", nil)

	result := n.Normalize(context.Background(), "whenever works")
	if result.Valid {
		t.Fatal("expected failure result")
	}
	if result.Hint != "Please provide date and time in the expected format" {
		t.Fatalf("expected model-supplied hint, got %q", result.Hint)
	}
}

func TestNormalizeModelReplyWithoutTags(t *testing.T) {
	chat := &stubChatClient{reply: "Sure! That would be the 24th."}
	n := NewNormalizer(chat, "", nil)

	result := n.Normalize(context.Background(), "some day")
	if result.Valid {
		t.Fatal("expected failure for untagged model reply")
	}
	if result.Hint != InvalidFormatHint {
		t.Fatalf("expected generic hint, got %q", result.Hint)
	}
}

func TestNormalizeModelErrorIsSoftFailure(t *testing.T) {
	chat := &stubChatClient{err: errors.New("rate limited")}
	n := NewNormalizer(chat, "", nil)

	result := n.Normalize(context.Background(), "next week sometime")
	if result.Valid {
		t.Fatal("expected failure when model call errors")
	}
	if result.Hint != InvalidFormatHint {
		t.Fatalf("expected generic hint, got %q", result.Hint)
	}
}

func TestNormalizeWithoutChatClient(t *testing.T) {
	n := NewNormalizer(nil, "", nil)

	result := n.Normalize(context.Background(), "sometime soon")
	if result.Valid {
		t.Fatal("expected failure without a chat client")
	}
	if result.Hint != InvalidFormatHint {
		t.Fatalf("expected generic hint, got %q", result.Hint)
	}
}
