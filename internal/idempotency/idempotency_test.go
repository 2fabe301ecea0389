package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/kv"
)

func TestHashPayload_OrderIndependent(t *testing.T) {
	a := HashPayload(map[string]interface{}{"b": 2, "a": 1})
	b := HashPayload(map[string]interface{}{"a": 1, "b": 2})
	if a != b {
		t.Fatalf("HashPayload should be independent of map iteration order: %q != %q", a, b)
	}
}

func TestExecute_ConcurrentCallsRunExecutorOnce(t *testing.T) {
	store := kv.NewMemory()
	fc := clock.NewFake(time.Unix(0, 0))
	svc := New(store, fc, DefaultConfig())

	var calls int32
	payload := map[string]interface{}{"orderId": "o-1"}

	run := func() (Outcome, error) {
		return svc.Execute(context.Background(), "process-order", payload, func(ctx context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(20 * time.Millisecond)
			return map[string]string{"status": "processed"}, nil
		})
	}

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = run()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("executor invoked %d times, want exactly 1", calls)
	}

	var r0, r1 map[string]string
	if err := json.Unmarshal(outcomes[0].Result, &r0); err != nil {
		t.Fatalf("unmarshal outcome 0: %v", err)
	}
	if err := json.Unmarshal(outcomes[1].Result, &r1); err != nil {
		t.Fatalf("unmarshal outcome 1: %v", err)
	}
	if r0["status"] != r1["status"] {
		t.Fatalf("both callers should observe the same result, got %v vs %v", r0, r1)
	}

	if outcomes[0].IsCached == outcomes[1].IsCached {
		t.Fatalf("expected exactly one caller to observe isCached=true, got %v and %v", outcomes[0].IsCached, outcomes[1].IsCached)
	}
}

func TestExecute_SecondCallAfterCompletionIsCached(t *testing.T) {
	store := kv.NewMemory()
	fc := clock.NewFake(time.Unix(0, 0))
	svc := New(store, fc, DefaultConfig())

	payload := map[string]interface{}{"orderId": "o-2"}
	var calls int32

	exec := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "done", nil
	}

	first, err := svc.Execute(context.Background(), "process-order", payload, exec)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.IsCached {
		t.Fatalf("first call should not be cached")
	}

	second, err := svc.Execute(context.Background(), "process-order", payload, exec)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.IsCached {
		t.Fatalf("second call with identical payload should be cached")
	}
	if calls != 1 {
		t.Fatalf("executor invoked %d times across two sequential calls, want 1", calls)
	}
}

func TestInvalidate_AllowsReexecution(t *testing.T) {
	store := kv.NewMemory()
	fc := clock.NewFake(time.Unix(0, 0))
	svc := New(store, fc, DefaultConfig())

	payload := map[string]interface{}{"orderId": "o-3"}
	var calls int32
	exec := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "done", nil
	}

	if _, err := svc.Execute(context.Background(), "process-order", payload, exec); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := svc.Invalidate(context.Background(), svc.Key("process-order", payload)); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := svc.Execute(context.Background(), "process-order", payload, exec); err != nil {
		t.Fatalf("third Execute: %v", err)
	}
	if calls != 2 {
		t.Fatalf("executor invoked %d times, want 2 after invalidate", calls)
	}
}
