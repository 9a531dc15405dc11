package devauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	ErrChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// Challenge is a pending second-factor step.
type Challenge struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// ChallengeStore keeps pending challenges until they expire or are
// completed.
type ChallengeStore interface {
	Save(ctx context.Context, token string, challenge Challenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (Challenge, error)
	// Take removes and returns the challenge in one step. Of several
	// concurrent callers at most one gets it; the rest see
	// ErrChallengeNotFound.
	Take(ctx context.Context, token string) (Challenge, error)
}

type memoryEntry struct {
	challenge Challenge
	expiresAt time.Time
}

// MemoryChallengeStore is a process-local ChallengeStore.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryChallengeStore(now func() time.Time) *MemoryChallengeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryChallengeStore{now: now, entries: map[string]memoryEntry{}}
}

func (s *MemoryChallengeStore) Save(_ context.Context, token string, challenge Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{challenge: challenge, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) Get(_ context.Context, token string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, token)
		return Challenge{}, ErrChallengeNotFound
	}
	return entry.challenge, nil
}

func (s *MemoryChallengeStore) Take(_ context.Context, token string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(s.entries, token)
	if !s.now().Before(entry.expiresAt) {
		return Challenge{}, ErrChallengeNotFound
	}
	return entry.challenge, nil
}

// RedisChallengeStore keeps challenges in Redis so several devauth
// instances can share them. Expiry is delegated to key TTLs.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisChallengeStore(client redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "devauth:mfa"
	}
	return &RedisChallengeStore{redis: client, prefix: prefix}
}

func (s *RedisChallengeStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RedisChallengeStore) Save(ctx context.Context, token string, challenge Challenge, ttl time.Duration) error {
	encoded, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, token string) (Challenge, error) {
	return s.decode(s.redis.Get(ctx, s.key(token)).Bytes())
}

func (s *RedisChallengeStore) Take(ctx context.Context, token string) (Challenge, error) {
	return s.decode(s.redis.GetDel(ctx, s.key(token)).Bytes())
}

func (s *RedisChallengeStore) decode(data []byte, err error) (Challenge, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	var challenge Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return Challenge{}, fmt.Errorf("%w: corrupt record: %v", ErrChallengeBackend, err)
	}
	return challenge, nil
}
