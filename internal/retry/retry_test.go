package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBusy = errors.New("busy")

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func TestDoRetriesThenSucceeds(t *testing.T) {
	rec := &recorder{}
	p := Default()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), isBusy, func(context.Context, int) error {
		calls++
		if calls <= 2 {
			return errBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.waits) != len(want) || rec.waits[0] != want[0] || rec.waits[1] != want[1] {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
}

func TestDoExhausts(t *testing.T) {
	rec := &recorder{}
	p := Default()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), isBusy, func(context.Context, int) error {
		calls++
		return errBusy
	})
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if ex.Attempts != 4 || calls != 4 {
		t.Fatalf("attempts = %d calls = %d, want 4", ex.Attempts, calls)
	}
	if !errors.Is(err, errBusy) {
		t.Fatal("exhausted error should unwrap to the last failure")
	}
	var total time.Duration
	for _, w := range rec.waits {
		total += w
	}
	if total != 14*time.Second {
		t.Fatalf("total backoff = %v, want 14s", total)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	rec := &recorder{}
	p := Default()
	p.Sleep = rec.sleep

	permanent := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), isBusy, func(context.Context, int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || IsExhausted(err) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 || len(rec.waits) != 0 {
		t.Fatalf("calls = %d waits = %v", calls, rec.waits)
	}
}

func TestDoHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Default()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := p.Do(ctx, isBusy, func(context.Context, int) error { return errBusy })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second}
	for i, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if got := p.Delay(i); got != want {
			t.Errorf("Delay(%d) = %v, want %v", i, got, want)
		}
	}
}
