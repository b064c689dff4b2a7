package llmservice

import (
	"context"
	"strings"

	"studybuddy/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// GenerateContent sends messages to the configured openai-compatible chat
// model and returns the response.
func GenerateContent(ctx context.Context, llmConfig *config.LLMConfig, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	log.Debug().Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Generating content")
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, err
	}
	return llm.GenerateContent(ctx, messages)
}

// Complete is a convenience wrapper for a single human prompt, returning the
// first choice's text.
func Complete(ctx context.Context, llmConfig *config.LLMConfig, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	res, err := GenerateContent(ctx, llmConfig, messages)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return res.Choices[0].Content, nil
}
