package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joss/ensemble/internal/cache"
	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/registry"
)

type testProvider struct {
	id      string
	quality float64
}

func testRegistry(t *testing.T, providers []testProvider) *registry.Registry {
	t.Helper()
	reg, err := registry.New(context.Background(), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, p := range providers {
		err := reg.Register(context.Background(), registry.Descriptor{
			ID:      p.id,
			BaseURL: "http://test.invalid",
			Quality: p.quality,
			Enabled: true,
		})
		if err != nil {
			t.Fatalf("register %s: %v", p.id, err)
		}
	}
	return reg
}

func translateOp(source string) domain.Operation {
	return domain.Operation{
		Kind:       domain.KindTranslate,
		Source:     source,
		SourceKind: "python",
		TargetKind: "go",
	}
}

func TestDispatchCacheHitSkipsProviders(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}})

	var calls atomic.Int64
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		calls.Add(1)
		return "translated", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	op := translateOp("print('hi')")

	first, err := d.Dispatch(context.Background(), "op1", op, []string{"a"}, domain.StrategyQualityFirst)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if first.CacheHit {
		t.Error("first dispatch should not be a cache hit")
	}

	second, err := d.Dispatch(context.Background(), "op2", op, []string{"a"}, domain.StrategyQualityFirst)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !second.CacheHit {
		t.Error("second dispatch should be a cache hit")
	}
	if second.Payload != "translated" {
		t.Errorf("cached payload = %q", second.Payload)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestQualityFirstFallbackOrder(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"low", 0.5}, {"high", 0.9}, {"mid", 0.7}})

	var mu sync.Mutex
	var order []string
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		mu.Lock()
		order = append(order, d.ID)
		mu.Unlock()
		if d.ID == "high" {
			return "", errors.New("overloaded")
		}
		return "from " + d.ID, nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"low", "high", "mid"}, domain.StrategyQualityFirst)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if out.ProviderID != "mid" {
		t.Errorf("winner = %s, want mid", out.ProviderID)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "mid"}
	if len(order) != len(want) {
		t.Fatalf("call order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestQualityFirstAllFail(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.7}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		return "", errors.New("down")
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	_, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b"}, domain.StrategyQualityFirst)

	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("err is not ExhaustedError: %v", err)
	}
	if ex.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", ex.Attempts)
	}
}

func TestRaceFastestWins(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"fast", 0.5}, {"mid", 0.6}, {"slow", 0.9}})

	delays := map[string]time.Duration{
		"fast": 10 * time.Millisecond,
		"mid":  60 * time.Millisecond,
		"slow": 200 * time.Millisecond,
	}
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		time.Sleep(delays[d.ID])
		return "from " + d.ID, nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})

	start := time.Now()
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"fast", "mid", "slow"}, domain.StrategyRace)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.ProviderID != "fast" {
		t.Errorf("winner = %s, want fast", out.ProviderID)
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("race waited for losers: took %s", elapsed)
	}
}

func TestRaceSkipsEarlyFailures(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"flaky", 0.5}, {"steady", 0.6}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "flaky" {
			return "", errors.New("boom")
		}
		time.Sleep(20 * time.Millisecond)
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"flaky", "steady"}, domain.StrategyRace)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.ProviderID != "steady" {
		t.Errorf("winner = %s, want steady", out.ProviderID)
	}
}

func TestRaceAllFail(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.5}, {"b", 0.6}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		return "", errors.New("down")
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	_, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b"}, domain.StrategyRace)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestConsensusQuorumFailure(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.8}, {"c", 0.7}, {"d", 0.6}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "a" || d.ID == "b" {
			return "[]", nil
		}
		return "", errors.New("down")
	}

	// Default quorum is the majority: 4/2+1 = 3, only 2 succeed.
	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	_, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b", "c", "d"}, domain.StrategyConsensus)

	if !errors.Is(err, ErrInsufficientQuorum) {
		t.Fatalf("err = %v, want ErrInsufficientQuorum", err)
	}
	var qe *QuorumError
	if !errors.As(err, &qe) {
		t.Fatalf("err is not QuorumError: %v", err)
	}
	if qe.Required != 3 || qe.Got != 2 || qe.Queried != 4 {
		t.Errorf("quorum = required %d got %d queried %d, want 3/2/4", qe.Required, qe.Got, qe.Queried)
	}
}

func TestConsensusQuorumMet(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.8}, {"c", 0.7}, {"d", 0.6}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "a" || d.ID == "b" {
			return "[]", nil
		}
		return "", errors.New("down")
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{Quorum: 2})
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b", "c", "d"}, domain.StrategyConsensus)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(out.Results) != 2 {
		t.Errorf("results = %d, want 2", len(out.Results))
	}
	if out.Queried != 4 {
		t.Errorf("queried = %d, want 4", out.Queried)
	}
}

func TestConsensusWaitsForAll(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.8}})

	var settled atomic.Int64
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "b" {
			time.Sleep(50 * time.Millisecond)
		}
		settled.Add(1)
		return "[]", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{Quorum: 1})
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b"}, domain.StrategyConsensus)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Unlike RACE, every candidate settles before the outcome returns.
	if got := settled.Load(); got != 2 {
		t.Errorf("settled = %d, want 2", got)
	}
	if len(out.Results) != 2 {
		t.Errorf("results = %d, want 2", len(out.Results))
	}
}

func TestRoundRobinFairness(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.8}, {"c", 0.7}})

	counts := make(map[string]*atomic.Int64)
	for _, id := range []string{"a", "b", "c"} {
		counts[id] = &atomic.Int64{}
	}
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		counts[d.ID].Add(1)
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	for i := 0; i < 9; i++ {
		// Distinct sources keep every dispatch off the cache path.
		op := translateOp(fmt.Sprintf("line %d", i))
		if _, err := d.Dispatch(context.Background(), fmt.Sprintf("op%d", i), op,
			[]string{"a", "b", "c"}, domain.StrategyRoundRobin); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	for id, c := range counts {
		if got := c.Load(); got != 3 {
			t.Errorf("provider %s called %d times, want 3", id, got)
		}
	}
}

func TestRoundRobinFallsBackOnce(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}, {"b", 0.8}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "a" {
			return "", errors.New("down")
		}
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	out, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a", "b"}, domain.StrategyRoundRobin)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.ProviderID != "b" {
		t.Errorf("winner = %s, want b", out.ProviderID)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
}

func TestRandomReselectsOnce(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"good", 0.9}, {"bad", 0.8}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if d.ID == "bad" {
			return "", errors.New("down")
		}
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(256, time.Hour), call, Options{})
	for i := 0; i < 10; i++ {
		op := translateOp(fmt.Sprintf("src %d", i))
		out, err := d.Dispatch(context.Background(), fmt.Sprintf("op%d", i), op,
			[]string{"good", "bad"}, domain.StrategyRandom)
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if out.ProviderID != "good" {
			t.Errorf("winner = %s, want good", out.ProviderID)
		}
		if out.Attempts > 2 {
			t.Errorf("attempts = %d, want at most 2", out.Attempts)
		}
	}
}

func TestDispatchNoCandidates(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}})

	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})
	_, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"nope"}, domain.StrategyQualityFirst)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}

	disabled := false
	if err := reg.Update(context.Background(), "a", registry.Patch{Enabled: &disabled}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err = d.Dispatch(context.Background(), "op2", translateOp("x"),
		[]string{"a"}, domain.StrategyQualityFirst)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates for disabled provider", err)
	}
}

func TestConcurrencyLimitHonored(t *testing.T) {
	reg, err := registry.New(context.Background(), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := reg.Register(context.Background(), registry.Descriptor{
		ID: "limited", BaseURL: "http://test.invalid",
		Quality: 0.9, Enabled: true, Concurrency: 2,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var inFlight, peak atomic.Int64
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(256, time.Hour), call, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			op := translateOp(fmt.Sprintf("src %d", n))
			if _, err := d.Dispatch(context.Background(), fmt.Sprintf("op%d", n), op,
				[]string{"limited"}, domain.StrategyQualityFirst); err != nil {
				t.Errorf("dispatch %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak in-flight = %d, want at most 2", got)
	}
}

func TestStatsRecorded(t *testing.T) {
	reg := testRegistry(t, []testProvider{{"a", 0.9}})

	fail := true
	call := func(ctx context.Context, d registry.Descriptor, prompt string) (string, error) {
		if fail {
			return "", errors.New("down")
		}
		return "ok", nil
	}

	d := New(reg, cache.NewMemory(64, time.Hour), call, Options{})

	if _, err := d.Dispatch(context.Background(), "op1", translateOp("x"),
		[]string{"a"}, domain.StrategyQualityFirst); err == nil {
		t.Fatal("expected failure")
	}
	fail = false
	if _, err := d.Dispatch(context.Background(), "op2", translateOp("y"),
		[]string{"a"}, domain.StrategyQualityFirst); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	stats := d.Stats()
	s, ok := stats["a"]
	if !ok {
		t.Fatal("no stats for provider a")
	}
	if s.Successes != 1 || s.Failures != 1 {
		t.Errorf("stats = %d ok / %d fail, want 1/1", s.Successes, s.Failures)
	}
}
