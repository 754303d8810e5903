package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxgate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxgate/pkg/provider/llm/mock"
	"github.com/MrWong99/voxgate/pkg/types"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "It is noon."}}
	secondary := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "unused"}}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.UserRequest("be brief", "what time is it"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "It is noon." {
		t.Errorf("content = %q", resp.Content)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestLLMFallback_EmptyReplyFailsOver(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	secondary := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Hello."}}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.UserRequest("", "hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello." {
		t.Errorf("content = %q, want the fallback's reply", resp.Content)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{Err: errTest}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{})

	_, err := fb.Complete(context.Background(), llm.UserRequest("", "hi"))
	if !errors.Is(err, types.ErrCompletion) || !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrCompletion and ErrAllFailed", err)
	}
}
