package openai

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

type Service struct {
	client *openai.Client
}

func NewService() *Service {
	key := config.GetOpenAIKey()

	if key == "" {
		log.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}

	return &Service{
		client: openai.NewClient(key),
	}
}

// Complete runs one chat completion and returns the first choice's message.
func (s *Service) Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("Chat completion request failed")
		return openai.ChatCompletionMessage{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("no response choices returned")
	}

	return resp.Choices[0].Message, nil
}
