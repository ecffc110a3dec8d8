package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parleyhq/parley/internal/infrastructure/redis"
	"github.com/parleyhq/parley/pkg/wire"
	goredis "github.com/redis/go-redis/v9"
)

const threadTTL = 24 * time.Hour

// ErrNotFound reports a request for a thread id that is not stored.
var ErrNotFound = errors.New("threads: thread not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one stored entry of a thread. Assistant entries either carry
// text content or the tool calls they requested; tool entries carry one
// call's output and reference it through ToolCallID.
type Message struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Data       json.RawMessage `json:"data,omitempty"`
	ToolCalls  []wire.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Thread is a server-side conversation transcript.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

type ThreadStore interface {
	Set(ctx context.Context, threadID string, thread *Thread) error
	Get(ctx context.Context, threadID string) (*Thread, error)
	Delete(ctx context.Context, threadID string) error
}

type RedisStore struct {
	redisService *redis.Service
}

type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

type Service struct {
	store ThreadStore
}

func NewService(redisService *redis.Service) *Service {

	var store ThreadStore
	if redisService != nil {

		// Test Redis connection
		ctx := context.Background()
		if err := redisService.Ping(ctx); err != nil {
			store = newMemoryStore()
		} else {
			store = &RedisStore{redisService: redisService}
		}
	} else {
		store = newMemoryStore()
	}

	return &Service{store: store}
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*Thread),
	}
}

func threadKey(threadID string) string {
	return "thread:" + threadID
}

// Redis Store implementation
func (rs *RedisStore) Set(ctx context.Context, threadID string, thread *Thread) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return err
	}

	return rs.redisService.Set(ctx, threadKey(threadID), string(data), threadTTL)
}

func (rs *RedisStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	data, err := rs.redisService.Get(ctx, threadKey(threadID))
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var thread Thread
	if err := json.Unmarshal([]byte(data), &thread); err != nil {
		return nil, err
	}

	return &thread, nil
}

func (rs *RedisStore) Delete(ctx context.Context, threadID string) error {
	return rs.redisService.Delete(ctx, threadKey(threadID))
}

// Memory Store implementation
func (ms *MemoryStore) Set(ctx context.Context, threadID string, thread *Thread) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.threads[threadID] = cloneThread(thread)
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	thread, exists := ms.threads[threadID]
	if !exists {
		return nil, nil
	}
	return cloneThread(thread), nil
}

func (ms *MemoryStore) Delete(ctx context.Context, threadID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.threads, threadID)
	return nil
}

// cloneThread keeps callers from mutating the stored transcript in place.
func cloneThread(t *Thread) *Thread {
	clone := *t
	clone.Messages = make([]Message, len(t.Messages))
	copy(clone.Messages, t.Messages)
	return &clone
}

// CreateThread allocates and stores a new empty thread.
func (s *Service) CreateThread(ctx context.Context) (*Thread, error) {
	thread := &Thread{
		ID:        fmt.Sprintf("thread_%s", uuid.New().String()[:8]),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Set(ctx, thread.ID, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread returns a stored thread or ErrNotFound.
func (s *Service) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	thread, err := s.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrNotFound
	}
	return thread, nil
}

// EnsureThread resolves threadID to a stored thread, creating a fresh one
// when the id is empty.
func (s *Service) EnsureThread(ctx context.Context, threadID string) (*Thread, error) {
	if threadID == "" {
		return s.CreateThread(ctx)
	}
	return s.GetThread(ctx, threadID)
}

// AppendMessage adds msg to the thread's transcript and persists it. The
// write also refreshes the thread's expiry.
func (s *Service) AppendMessage(ctx context.Context, threadID string, msg Message) error {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	thread.Messages = append(thread.Messages, msg)

	return s.store.Set(ctx, threadID, thread)
}

// History returns the thread's messages in append order.
func (s *Service) History(ctx context.Context, threadID string) ([]Message, error) {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return thread.Messages, nil
}

// PendingToolCalls returns the calls of the latest tool-call request that
// still lack an output. A plain user or assistant message after the request
// settles the exchange; from there on nothing is pending.
func (s *Service) PendingToolCalls(ctx context.Context, threadID string) ([]wire.ToolCall, error) {
	history, err := s.History(ctx, threadID)
	if err != nil {
		return nil, err
	}

	satisfied := make(map[string]bool)
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]

		if msg.ToolCallID != "" {
			satisfied[msg.ToolCallID] = true
			continue
		}

		if len(msg.ToolCalls) > 0 {
			var pending []wire.ToolCall
			for _, call := range msg.ToolCalls {
				if !satisfied[call.ID] {
					pending = append(pending, call)
				}
			}
			return pending, nil
		}

		// A plain message; the latest exchange holds no open tool calls.
		return nil, nil
	}

	return nil, nil
}
