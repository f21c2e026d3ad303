package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Image is a single raster image to include in a vision-chat call, ordered
// alongside any others the caller supplies.
type Image struct {
	Path      string
	MediaType string // e.g. "image/png"
}

// Client is pidscan's single-call wrapper over a vision-capable chat API
// (spec §4.6, C3). It wraps a VisionProvider for image+text calls and an
// ordered list of fallback Providers for pure-text chat.
type Client struct {
	vision    VisionProvider
	fallbacks []Provider
}

// NewClient builds a Client from a vision provider config and zero or more
// fallback text-chat provider configs tried in order by TextChat.
func NewClient(visionCfg Config, fallbackCfgs ...Config) (*Client, error) {
	vp, err := NewVisionProvider(visionCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: building vision provider: %w", err)
	}
	fallbacks := make([]Provider, 0, len(fallbackCfgs)+1)
	fallbacks = append(fallbacks, vp)
	for _, fc := range fallbackCfgs {
		p, err := NewProvider(fc)
		if err != nil {
			slog.Warn("llm: skipping unusable fallback provider", "provider", fc.Provider, "error", err)
			continue
		}
		fallbacks = append(fallbacks, p)
	}
	return &Client{vision: vp, fallbacks: fallbacks}, nil
}

// apologyText is returned by TextChat when every provider in the fallback
// chain fails. Kept verbatim from the original service's user-facing copy
// since it is part of the chat surface's external contract, not a comment.
const apologyText = "죄송합니다. 현재 응답을 생성할 수 없습니다."

// Chat sends one or more raster images plus a text prompt to the vision
// provider and returns the raw text response. It surfaces ErrModelUnavailable
// semantics by wrapping auth/quota/network failures distinctly from a
// successful-but-empty response, so callers can decide whether to retry
// text-only or abort the page (spec §4.6).
func (c *Client) Chat(ctx context.Context, images []Image, prompt string, maxTokens int) (string, error) {
	parts := make([]ContentPart, 0, len(images)+1)
	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return "", fmt.Errorf("llm: reading image %s: %w", img.Path, err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		parts = append(parts, ContentPart{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType, encoded),
			},
		})
	}
	parts = append(parts, ContentPart{Type: "text", Text: prompt})

	resp, err := c.vision.ChatWithImages(ctx, VisionChatRequest{
		Messages: []VisionMessage{
			{Role: "user", Content: parts},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errModelUnavailable, err)
	}
	return resp.Content, nil
}

// errModelUnavailable is a package-local sentinel; the top-level pidscan
// package declares its own, separate ErrModelUnavailable, and llm stays
// free of a dependency on the root module (avoiding an import cycle).
// Callers match this one through IsModelUnavailable.
var errModelUnavailable = errors.New("llm: model unavailable")

// IsModelUnavailable reports whether err originated from a failed provider
// call (auth, quota, network) as opposed to a well-formed but unusable
// response.
func IsModelUnavailable(err error) bool {
	return errors.Is(err, errModelUnavailable)
}

// TextChat performs provider fallback across the declared preference order:
// the primary vision provider's underlying chat endpoint, then each
// configured fallback in order. It returns the first non-error response, or
// the fixed apology string if every provider fails (spec §4.6).
func (c *Client) TextChat(ctx context.Context, system, user string) string {
	msgs := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	for i, p := range c.fallbacks {
		resp, err := p.Chat(ctx, ChatRequest{Messages: msgs})
		if err != nil {
			slog.Warn("llm: text_chat provider failed, trying next", "index", i, "error", err)
			continue
		}
		return resp.Content
	}
	return apologyText
}
