package config

import "github.com/rs/zerolog/log"

const defaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help you answer, and keep answers short."

// GetOpenAIKey returns the OpenAI API key, or "" when not configured.
func GetOpenAIKey() string {
	value := GetEnvOrDefault("OPENAI_KEY", "")
	if value == "" {
		log.Warn().Msg("OPENAI_KEY environment variable not set")
	}
	return value
}

// GetOpenAIModel returns the chat model used for assistant completions.
func GetOpenAIModel() string {
	return GetEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
}

// GetSystemPrompt returns the system prompt prepended to every completion.
func GetSystemPrompt() string {
	return GetEnvOrDefault("ASSISTANT_SYSTEM_PROMPT", defaultSystemPrompt)
}
