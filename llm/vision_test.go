package llm

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider is a hand-rolled Provider/VisionProvider used by tests,
// following the teacher's provider_test.go convention of implementing the
// interface directly rather than reaching for a mocking library.
type fakeProvider struct {
	chatErr   error
	chatResp  ChatResponse
	visionErr error
	visionResp ChatResponse
}

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &f.chatResp, nil
}

func (f *fakeProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	if f.visionErr != nil {
		return nil, f.visionErr
	}
	return &f.visionResp, nil
}

func TestClientTextChat_FirstProviderSucceeds(t *testing.T) {
	c := &Client{
		vision:    &fakeProvider{},
		fallbacks: []Provider{&fakeProvider{chatResp: ChatResponse{Content: "first"}}},
	}
	got := c.TextChat(context.Background(), "sys", "user")
	if got != "first" {
		t.Fatalf("got %q, want %q", got, "first")
	}
}

func TestClientTextChat_FallsThroughToSecond(t *testing.T) {
	c := &Client{
		fallbacks: []Provider{
			&fakeProvider{chatErr: errors.New("boom")},
			&fakeProvider{chatResp: ChatResponse{Content: "second"}},
		},
	}
	got := c.TextChat(context.Background(), "sys", "user")
	if got != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestClientTextChat_AllFailReturnsApology(t *testing.T) {
	c := &Client{
		fallbacks: []Provider{
			&fakeProvider{chatErr: errors.New("boom")},
			&fakeProvider{chatErr: errors.New("boom2")},
		},
	}
	got := c.TextChat(context.Background(), "sys", "user")
	if got != apologyText {
		t.Fatalf("got %q, want apology text", got)
	}
}

func TestClientChat_WrapsProviderError(t *testing.T) {
	c := &Client{vision: &fakeProvider{visionErr: errors.New("401 unauthorized")}}
	_, err := c.Chat(context.Background(), nil, "describe", 100)
	if !IsModelUnavailable(err) {
		t.Fatalf("expected IsModelUnavailable, got %v", err)
	}
}
