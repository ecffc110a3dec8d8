package services

import (
	"fmt"
	"sync"

	"github.com/parleyhq/parley/internal/infrastructure/openai"
	"github.com/parleyhq/parley/internal/infrastructure/redis"
	"github.com/parleyhq/parley/internal/services/assistant"
	"github.com/parleyhq/parley/internal/services/threads"
	"github.com/rs/zerolog/log"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	assistantService *assistant.Service
	openAIService    *openai.Service
	redisService     *redis.Service
	threadService    *threads.Service
}

// InitializeServices initializes all required services
func InitializeServices() (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService()
	log.Info().Msg("Initializing Redis service")

	// Initialize thread service with optional Redis
	threadService := threads.NewService(redisService)
	log.Info().Msg("Initializing thread service")

	// Initialize OpenAI service (required)
	openAIService := openai.NewService()
	if openAIService == nil {
		log.Fatal().Msg("Failed to initialize OpenAI service - service is required for core functionality")
	}

	// Initialize assistant service (required)
	assistantService, err := assistant.NewService(openAIService, threadService)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize assistant service - required for message processing")
		return nil, fmt.Errorf("failed to initialize assistant service: %w", err)
	}
	log.Info().Msg("Initializing assistant service")

	log.Info().Msg("All services initialized successfully")

	return &Services{
		assistantService: assistantService,
		openAIService:    openAIService,
		redisService:     redisService,
		threadService:    threadService,
	}, nil
}

// GetAssistantService returns the assistant service
func (s *Services) GetAssistantService() *assistant.Service {
	return s.assistantService
}

// GetThreadService returns the thread service
func (s *Services) GetThreadService() *threads.Service {
	return s.threadService
}
