package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouncehq/onboard/internal/schema"
)

// fakeProvider counts calls and either succeeds or fails.
type fakeProvider struct {
	name  string
	calls int
	fail  bool
	reply string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Extract(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	if f.fail {
		return nil, &Error{Provider: f.name, Transient: true, Err: errors.New("boom")}
	}
	return &Result{
		Reply:     f.reply,
		Extracted: map[string]string{"name": "Ann"},
	}, nil
}

func testCaller(candidates []Candidate) *Caller {
	c := NewCaller(candidates, CallerOptions{
		Timeout:    time.Second,
		RetryDelay: time.Millisecond,
	})
	c.randInt = func(n int) int { return 0 } // deterministic primary
	c.sleep = func(ctx context.Context, d time.Duration) {}
	return c
}

func TestCallPrimarySuccess(t *testing.T) {
	a := &fakeProvider{name: "a", reply: "hi from a"}
	b := &fakeProvider{name: "b", reply: "hi from b"}
	c := testCaller([]Candidate{
		{Provider: a, Weight: 60, Enabled: true},
		{Provider: b, Weight: 40, Enabled: true},
	})

	out := c.Call(context.Background(), Request{})
	require.False(t, out.Degraded)
	assert.Equal(t, "hi from a", out.Reply)
	assert.Equal(t, "a", out.Meta.Provider)
	assert.Equal(t, 1, out.Meta.Attempts)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls, "fallback must not be invoked when primary succeeds")
}

func TestCallFallsBackInOrder(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	b := &fakeProvider{name: "b", fail: true}
	cc := &fakeProvider{name: "c", reply: "hi from c"}
	c := testCaller([]Candidate{
		{Provider: a, Weight: 100, Enabled: true},
		{Provider: b, Weight: 0, Enabled: true},
		{Provider: cc, Weight: 0, Enabled: true},
	})

	out := c.Call(context.Background(), Request{})
	require.False(t, out.Degraded)
	assert.Equal(t, "hi from c", out.Reply)
	assert.Equal(t, "c", out.Meta.Provider)
	assert.Equal(t, 3, out.Meta.Attempts)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestCallAllFailDegrades(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	b := &fakeProvider{name: "b", fail: true}
	c := testCaller([]Candidate{
		{Provider: a, Weight: 50, Enabled: true},
		{Provider: b, Weight: 50, Enabled: true},
	})

	out := c.Call(context.Background(), Request{})
	require.True(t, out.Degraded)
	assert.Equal(t, schema.DegradedReply, out.Reply)
	assert.Empty(t, out.Extracted)
	assert.Equal(t, 2, out.Meta.Attempts, "call count should equal enabled candidates")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestCallSkipsDisabled(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	disabled := &fakeProvider{name: "off", reply: "nope"}
	b := &fakeProvider{name: "b", reply: "hi from b"}
	c := testCaller([]Candidate{
		{Provider: a, Weight: 100, Enabled: true},
		{Provider: disabled, Weight: 0, Enabled: false},
		{Provider: b, Weight: 0, Enabled: true},
	})

	out := c.Call(context.Background(), Request{})
	require.False(t, out.Degraded)
	assert.Equal(t, "hi from b", out.Reply)
	assert.Zero(t, disabled.calls)
}

func TestCallZeroWeightNeverPrimary(t *testing.T) {
	zero := &fakeProvider{name: "zero", reply: "hi from zero"}
	weighted := &fakeProvider{name: "weighted", reply: "hi from weighted"}
	c := testCaller([]Candidate{
		{Provider: zero, Weight: 0, Enabled: true},
		{Provider: weighted, Weight: 100, Enabled: true},
	})

	// Any roll must land on the weighted candidate.
	for _, roll := range []int{0, 50, 99} {
		c.randInt = func(n int) int { return roll }
		out := c.Call(context.Background(), Request{})
		assert.Equal(t, "hi from weighted", out.Reply)
	}
	assert.Zero(t, zero.calls)
}

func TestCallRetriesWithinProvider(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	c := NewCaller([]Candidate{{Provider: a, Weight: 100, Enabled: true}}, CallerOptions{
		Timeout:    time.Second,
		Retries:    3,
		RetryDelay: time.Millisecond,
	})
	c.randInt = func(n int) int { return 0 }
	c.sleep = func(ctx context.Context, d time.Duration) {}

	out := c.Call(context.Background(), Request{})
	require.True(t, out.Degraded)
	assert.Equal(t, 3, a.calls)
}

func TestPickPrimaryDistribution(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	c := testCaller([]Candidate{
		{Provider: a, Weight: 70, Enabled: true},
		{Provider: b, Weight: 30, Enabled: true},
	})

	tests := []struct {
		roll int
		want int
	}{
		{roll: 0, want: 0},
		{roll: 69, want: 0},
		{roll: 70, want: 1},
		{roll: 99, want: 1},
	}
	for _, tt := range tests {
		c.randInt = func(n int) int {
			require.Equal(t, 100, n)
			return tt.roll
		}
		got := c.pickPrimary(c.candidates)
		assert.Equal(t, tt.want, got, "roll %d", tt.roll)
	}
}

func TestReloadSwapsCandidates(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	c := testCaller([]Candidate{{Provider: a, Weight: 100, Enabled: true}})

	b := &fakeProvider{name: "b", reply: "hi from b"}
	c.Reload([]Candidate{{Provider: b, Weight: 100, Enabled: true}})

	out := c.Call(context.Background(), Request{})
	require.False(t, out.Degraded)
	assert.Equal(t, "hi from b", out.Reply)
	assert.Zero(t, a.calls)
}
