package fn

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestUniqueKeepsFirstOccurrenceOrder(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"duplicates collapse", []string{"bosch", "ate", "bosch", "brembo", "ate"}, []string{"bosch", "ate", "brembo"}},
		{"already unique", []string{"front", "rear"}, []string{"front", "rear"}},
		{"single element", []string{"left"}, []string{"left"}},
		{"nil stays nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Unique(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Unique(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestFanOutPreservesCallOrder(t *testing.T) {
	out := FanOut(
		func() int { time.Sleep(30 * time.Millisecond); return 0 },
		func() int { time.Sleep(10 * time.Millisecond); return 1 },
		func() int { return 2 },
	)
	if !reflect.DeepEqual(out, []int{0, 1, 2}) {
		t.Errorf("FanOut order = %v, want [0 1 2]", out)
	}
}

func TestFanOutNoFuncs(t *testing.T) {
	if out := FanOut[int](); len(out) != 0 {
		t.Errorf("FanOut() = %v, want empty", out)
	}
}

func TestResult(t *testing.T) {
	okRes := Ok(42)
	if !okRes.IsOk() || okRes.IsErr() {
		t.Error("Ok result should report IsOk")
	}
	if v, err := okRes.Unwrap(); v != 42 || err != nil {
		t.Errorf("Unwrap = (%d, %v), want (42, nil)", v, err)
	}

	boom := errors.New("boom")
	errRes := Err[int](boom)
	if errRes.IsOk() || !errRes.IsErr() {
		t.Error("Err result should report IsErr")
	}
	if v, err := errRes.Unwrap(); v != 0 || !errors.Is(err, boom) {
		t.Errorf("Unwrap = (%d, %v), want (0, boom)", v, err)
	}
}

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		res := Retry(context.Background(), opts, func(context.Context) Result[string] {
			calls++
			return Ok("done")
		})
		if v, err := res.Unwrap(); v != "done" || err != nil || calls != 1 {
			t.Errorf("got (%q, %v) after %d calls, want (\"done\", nil) after 1", v, err, calls)
		}
	})

	t.Run("recovers within budget", func(t *testing.T) {
		calls := 0
		res := Retry(context.Background(), opts, func(context.Context) Result[string] {
			calls++
			if calls < 3 {
				return Err[string](boom)
			}
			return Ok("done")
		})
		if v, _ := res.Unwrap(); v != "done" || calls != 3 {
			t.Errorf("got %q after %d calls, want \"done\" after 3", v, calls)
		}
	})

	t.Run("returns last error when spent", func(t *testing.T) {
		calls := 0
		res := Retry(context.Background(), opts, func(context.Context) Result[string] {
			calls++
			return Err[string](boom)
		})
		if _, err := res.Unwrap(); !errors.Is(err, boom) || calls != 3 {
			t.Errorf("got %v after %d calls, want boom after 3", err, calls)
		}
	})

	t.Run("zero attempts still calls once", func(t *testing.T) {
		calls := 0
		Retry(context.Background(), RetryOpts{}, func(context.Context) Result[int] {
			calls++
			return Err[int](boom)
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("done context stops the retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		res := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Minute}, func(context.Context) Result[int] {
			calls++
			cancel()
			return Err[int](boom)
		})
		if _, err := res.Unwrap(); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
