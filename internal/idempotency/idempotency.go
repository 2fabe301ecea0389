// Package idempotency implements the content-hash keyed result cache and
// per-key execution lock (C6) that guarantees at-least-once delivery behaves
// like exactly-once from the caller's point of view.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/kv"
)

// ErrIdempotencyBusy is returned when the cross-process lock could not be
// acquired within the bounded wait budget. It is distinct from a generic
// Unknown classification per spec §9's own design note.
var ErrIdempotencyBusy = errors.New("idempotency: lock held by another executor, gave up waiting")

// Config controls key prefix and default TTL.
type Config struct {
	KeyPrefix  string
	TTL        time.Duration
	LockTTL    time.Duration
	WaitBudget time.Duration // total time to spend polling for the lock
}

// DefaultConfig matches spec §6 queue/idempotency naming conventions.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "aidos:idempotency:",
		TTL:        7 * 24 * time.Hour,
		LockTTL:    300 * time.Second,
		WaitBudget: 10 * time.Second,
	}
}

// Record is the cached outcome of a prior executeIdempotent call.
type Record struct {
	Result     json.RawMessage `json:"result"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Outcome is returned by Execute.
type Outcome struct {
	Result   json.RawMessage
	IsCached bool
}

// Executor runs the actual task logic and returns its (serializable) result.
type Executor func(ctx context.Context) (interface{}, error)

// Service implements C6. A single Service should be shared by every worker
// in this process: the in-process de-duplication layer (golang.org/x/sync's
// singleflight) only collapses concurrent calls that share one Service.
//
// Per the REDESIGN FLAG in spec §9, the cross-process KV lock's fixed 1s
// sleep is replaced with bounded exponential backoff inside a WaitBudget,
// and a distinct ErrIdempotencyBusy rather than a generic classification.
type Service struct {
	store  kv.Store
	clock  clock.Clock
	cfg    Config
	group  singleflight.Group
}

// New creates an idempotency Service over the given durable store.
func New(store kv.Store, c clock.Clock, cfg Config) *Service {
	return &Service{store: store, clock: c, cfg: cfg}
}

// Key derives the idempotency key for (taskName, payload): sort payload keys
// lexicographically, stringify, then hash with a 32-bit FNV-1a rolling hash
// rendered base36, per spec §4.6.
func (s *Service) Key(taskName string, payload map[string]interface{}) string {
	return s.cfg.KeyPrefix + taskName + ":" + HashPayload(payload)
}

// HashPayload stringifies payload with lexicographically sorted keys and
// returns its 32-bit FNV-1a hash rendered base36.
func HashPayload(payload map[string]interface{}) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, payload[k])
	}

	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < b.Len(); i++ {
		h ^= uint32(b.String()[i])
		h *= prime32
	}
	return toBase36(h)
}

func toBase36(n uint32) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var buf [13]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%36]
		n /= 36
	}
	return string(buf[i:])
}

// Execute runs executor exactly once for a given (taskName, payload) pair
// across the whole process fleet that shares store, returning the same
// result to every concurrent caller.
func (s *Service) Execute(ctx context.Context, taskName string, payload map[string]interface{}, executor Executor) (Outcome, error) {
	key := s.Key(taskName, payload)

	// In-process fast path: collapse concurrent callers in THIS process into
	// one in-flight call before ever touching the KV lock.
	// Only callers that joined another caller's in-flight call are reported
	// as cached; the caller whose call ran keeps executeWithLock's flag.
	leader := false
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		leader = true
		return s.executeWithLock(ctx, key, executor)
	})
	if err != nil {
		return Outcome{}, err
	}
	outcome := v.(Outcome)
	if shared && !leader {
		outcome.IsCached = true
	}
	return outcome, nil
}

func (s *Service) executeWithLock(ctx context.Context, key string, executor Executor) (Outcome, error) {
	if rec, ok := s.check(ctx, key); ok {
		return Outcome{Result: rec.Result, IsCached: true}, nil
	}

	lockKey := key + ":lock"
	acquired, err := s.store.SetIfAbsent(ctx, lockKey, "1", s.cfg.LockTTL)
	if err != nil {
		return Outcome{}, err
	}

	if !acquired {
		rec, ok, err := s.waitForResult(ctx, key)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return Outcome{Result: rec.Result, IsCached: true}, nil
		}
		return Outcome{}, ErrIdempotencyBusy
	}
	defer s.store.Del(context.Background(), lockKey)

	result, err := executor(ctx)
	if err != nil {
		return Outcome{}, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return Outcome{}, err
	}

	rec := Record{Result: raw, ExecutedAt: s.clock.Now()}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.store.Set(ctx, key, string(recBytes), s.cfg.TTL); err != nil {
		return Outcome{}, err
	}

	return Outcome{Result: raw, IsCached: false}, nil
}

func (s *Service) check(ctx context.Context, key string) (Record, bool) {
	val, err := s.store.Get(ctx, key)
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// waitForResult polls for the winning executor's result using bounded
// exponential backoff within WaitBudget, instead of spec §4.6's original
// fixed 1s sleep-then-recheck.
func (s *Service) waitForResult(ctx context.Context, key string) (Record, bool, error) {
	deadline := s.clock.Now().Add(s.cfg.WaitBudget)
	delay := 50 * time.Millisecond
	const maxDelay = 2 * time.Second

	for s.clock.Now().Before(deadline) {
		if rec, ok := s.check(ctx, key); ok {
			return rec, true, nil
		}

		select {
		case <-ctx.Done():
			return Record{}, false, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	if rec, ok := s.check(ctx, key); ok {
		return rec, true, nil
	}
	return Record{}, false, nil
}

// Invalidate clears a cached record and its lock.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	if err := s.store.Del(ctx, key); err != nil {
		return err
	}
	return s.store.Del(ctx, key+":lock")
}
