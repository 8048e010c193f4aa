package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"dining-service/internal/models"

	"github.com/google/uuid"
)

// MemoryLedger is a process-local PaymentLedger. Attempts are stored as
// encoded copies so stored results are never aliased by callers.
type MemoryLedger struct {
	mu       sync.Mutex
	attempts map[string][]byte
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{attempts: make(map[string][]byte)}
}

func (l *MemoryLedger) FindAttempt(ctx context.Context, key string) (*models.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok := l.attempts[key]
	if !ok {
		return nil, nil
	}
	var a models.PaymentAttempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (l *MemoryLedger) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.attempts[attempt.IdempotencyKey]; ok {
		return models.ErrDuplicateIdempotencyKey
	}
	return l.put(attempt)
}

func (l *MemoryLedger) UpdateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.put(attempt)
}

func (l *MemoryLedger) PendingAttempts(ctx context.Context) ([]models.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.PaymentAttempt
	for _, raw := range l.attempts {
		var a models.PaymentAttempt
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.Pending() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryLedger) put(attempt *models.PaymentAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	l.attempts[attempt.IdempotencyKey] = raw
	return nil
}

// MemoryGuard is a process-local KeyGuard with lock expiry
type MemoryGuard struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryGuard creates an empty guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{locks: make(map[string]memoryLock)}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if l, ok := g.locks[key]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	token := uuid.New().String()
	g.locks[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.locks[key]; ok && l.token == token {
		delete(g.locks, key)
	}
	return nil
}
