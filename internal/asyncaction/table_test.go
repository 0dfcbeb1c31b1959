package asyncaction

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetThenWait(t *testing.T) {
	tbl := New()
	h := tbl.Set(context.Background(), "pkg-a", func(ctx context.Context) (any, error) {
		return 42, nil
	})

	val, err := h.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if val != 42 {
		t.Fatalf("val = %v, want 42", val)
	}
}

func TestReduceObservesPriorTask(t *testing.T) {
	tbl := New()
	ctx := context.Background()

	tbl.Set(ctx, "pkg-a", func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "materialised", nil
	})

	h := tbl.Reduce(ctx, "pkg-a", func(ctx context.Context, prev *Handle) (any, error) {
		prevVal, err := prev.Wait(ctx)
		if err != nil {
			return nil, err
		}
		return prevVal.(string) + "+attached", nil
	})

	val, err := h.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if val != "materialised+attached" {
		t.Fatalf("val = %v", val)
	}
}

func TestReduceWithNoPriorTask(t *testing.T) {
	tbl := New()
	ctx := context.Background()

	h := tbl.Reduce(ctx, "fresh-key", func(ctx context.Context, prev *Handle) (any, error) {
		val, err := prev.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if val != nil {
			t.Fatalf("expected nil prior value, got %v", val)
		}
		return "ok", nil
	})

	if val, err := h.Wait(ctx); err != nil || val != "ok" {
		t.Fatalf("val=%v err=%v", val, err)
	}
}

func TestSetSupersedesPriorHandleInTable(t *testing.T) {
	tbl := New()
	ctx := context.Background()

	first := tbl.Set(ctx, "k", func(ctx context.Context) (any, error) { return "first", nil })
	first.Wait(ctx)

	second := tbl.Set(ctx, "k", func(ctx context.Context) (any, error) { return "second", nil })

	if tbl.Latest("k") != second {
		t.Fatal("Latest should track the most recent Set call")
	}
	val, _ := first.Wait(ctx)
	if val != "first" {
		t.Fatal("a superseded handle must still settle with its own outcome")
	}
}

func TestRejectionIsScopedToItsOwnKey(t *testing.T) {
	tbl := New()
	ctx := context.Background()

	ha := tbl.Set(ctx, "a", func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	hb := tbl.Set(ctx, "b", func(ctx context.Context) (any, error) { return "fine", nil })

	if _, err := ha.Wait(ctx); err == nil {
		t.Fatal("expected error on key a")
	}
	if val, err := hb.Wait(ctx); err != nil || val != "fine" {
		t.Fatalf("key b must be unaffected by key a's rejection: val=%v err=%v", val, err)
	}
}

func TestWaitBlocksUntilAllSettle(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	var done int32

	for i := 0; i < 20; i++ {
		tbl.Set(ctx, string(rune('a'+i)), func(ctx context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil, nil
		})
	}

	tbl.Wait()
	if atomic.LoadInt32(&done) != 20 {
		t.Fatalf("Wait returned before all tasks settled: %d/20", done)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	var cur, max int32

	for i := 0; i < 40; i++ {
		tbl.Set(ctx, string(rune(i)), func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&cur, 1)
			for {
				m := atomic.LoadInt32(&max)
				if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
			return nil, nil
		})
	}

	tbl.Wait()
	if max > maxConcurrentFactories {
		t.Fatalf("observed %d concurrent factories, ceiling is %d", max, maxConcurrentFactories)
	}
}
