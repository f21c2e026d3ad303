package llm

import "context"

// anthropicProvider implements Provider for Anthropic's Claude models via
// its OpenAI-compatible chat-completions shim. Claude is the middle vendor
// in pidscan's text_chat fallback chain (openai -> anthropic -> gemini),
// mirroring the original service's llm_chat preference order.
//
// Supported chat models:
//
//	claude-3-5-sonnet-20241022  — balanced capability/cost
//	claude-3-5-haiku-20241022   — fast, cheap fallback
//
// API key: set via config or ANTHROPIC_API_KEY env var.
type anthropicProvider struct {
	base openAICompatClient
}

// NewAnthropic creates a provider for Anthropic Claude.
func NewAnthropic(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &anthropicProvider{base: newOpenAICompatClientPrefix(cfg, "/v1")}
}

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *anthropicProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
