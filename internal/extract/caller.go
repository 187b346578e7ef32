package extract

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pouncehq/onboard/internal/schema"
	"github.com/pouncehq/onboard/pkg/models"
)

// Candidate pairs a provider with its selection policy. Weight picks the
// primary (weighted random among enabled candidates); fallback walks the
// declared order regardless of weight. Weight 0 or disabled means never
// primary; disabled also removes the candidate from fallback.
type Candidate struct {
	Provider Provider
	Weight   int
	Enabled  bool
}

// Outcome is what the caller always returns: either a provider result or the
// degraded apology. Degraded outcomes are not errors; the conversation
// continues and the user retries on the next turn.
type Outcome struct {
	Reply         string
	Extracted     map[string]string
	ModelComplete bool
	Degraded      bool
	Meta          models.ProviderMetadata
}

// Caller invokes the extraction providers with weighted primary selection,
// ordered fallback, and a terminal degraded response.
type Caller struct {
	mu         sync.RWMutex
	candidates []Candidate

	timeout     time.Duration
	retries     int // attempts per provider before moving on
	retryDelay  time.Duration
	temperature float64

	randInt func(n int) int                           // swappable for tests
	sleep   func(ctx context.Context, d time.Duration) // swappable for tests
}

// CallerOptions tune the caller. Zero values fall back to defaults.
type CallerOptions struct {
	Timeout     time.Duration // per provider attempt, default 30s
	Retries     int           // attempts per provider, default 1
	RetryDelay  time.Duration // base backoff between retries, default 1s
	Temperature float64       // base sampling temperature, default 0.7
}

// NewCaller creates a Caller over the given candidates in fallback order.
func NewCaller(candidates []Candidate, opts CallerOptions) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	return &Caller{
		candidates:  candidates,
		timeout:     opts.Timeout,
		retries:     opts.Retries,
		retryDelay:  opts.RetryDelay,
		temperature: opts.Temperature,
		randInt:     rand.Intn,
		sleep:       sleepCtx,
	}
}

// Reload swaps the candidate list, e.g. after a provider config change.
// In-flight calls finish against the list they started with.
func (c *Caller) Reload(candidates []Candidate) {
	c.mu.Lock()
	c.candidates = candidates
	c.mu.Unlock()
	log.Info().Int("candidates", len(candidates)).Msg("Provider candidates reloaded")
}

// Call obtains an extraction result for the conversation, trying the weighted
// primary first and then each remaining enabled candidate in declared order.
// It never returns an error: when every candidate fails the outcome is the
// fixed degraded apology with an empty extraction.
func (c *Caller) Call(ctx context.Context, req Request) *Outcome {
	c.mu.RLock()
	candidates := c.candidates
	c.mu.RUnlock()

	start := time.Now()
	attempts := 0

	for _, idx := range c.callOrder(candidates) {
		cand := candidates[idx]
		res, n := c.tryProvider(ctx, cand.Provider, req)
		attempts += n
		if res != nil {
			return &Outcome{
				Reply:         res.Reply,
				Extracted:     res.Extracted,
				ModelComplete: res.ModelComplete,
				Meta: models.ProviderMetadata{
					Provider:         cand.Provider.Name(),
					LatencyMS:        time.Since(start).Milliseconds(),
					PromptTokens:     res.PromptTokens,
					CompletionTokens: res.CompletionTokens,
					Attempts:         attempts,
				},
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Error().Int("attempts", attempts).Msg("All extraction providers failed, degrading")
	return &Outcome{
		Reply:     schema.DegradedReply,
		Extracted: map[string]string{},
		Degraded:  true,
		Meta: models.ProviderMetadata{
			Provider:  "none",
			LatencyMS: time.Since(start).Milliseconds(),
			Attempts:  attempts,
			Degraded:  true,
		},
	}
}

// callOrder returns candidate indexes to try: the weighted-random primary
// first, then the remaining enabled candidates in declared order.
func (c *Caller) callOrder(candidates []Candidate) []int {
	primary := c.pickPrimary(candidates)
	order := make([]int, 0, len(candidates))
	if primary >= 0 {
		order = append(order, primary)
	}
	for i, cand := range candidates {
		if i == primary || !cand.Enabled {
			continue
		}
		order = append(order, i)
	}
	return order
}

// pickPrimary selects a primary by weighted random choice among enabled
// candidates with positive weight. Returns -1 when none qualifies, in which
// case fallback order alone applies.
func (c *Caller) pickPrimary(candidates []Candidate) int {
	total := 0
	for _, cand := range candidates {
		if cand.Enabled && cand.Weight > 0 {
			total += cand.Weight
		}
	}
	if total == 0 {
		return -1
	}
	roll := c.randInt(total)
	for i, cand := range candidates {
		if !cand.Enabled || cand.Weight <= 0 {
			continue
		}
		roll -= cand.Weight
		if roll < 0 {
			return i
		}
	}
	return -1
}

// tryProvider runs up to c.retries attempts against one provider, bumping
// temperature and backing off between attempts. Returns the result and the
// number of attempts consumed.
func (c *Caller) tryProvider(ctx context.Context, p Provider, req Request) (*Result, int) {
	attempts := 0
	for i := 0; i < c.retries; i++ {
		attempts++
		attemptReq := req
		attemptReq.Temperature = c.temperature + float64(i)*0.1

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := p.Extract(attemptCtx, attemptReq)
		cancel()

		if err == nil {
			log.Debug().
				Str("provider", p.Name()).
				Int("attempt", attempts).
				Int("extracted", len(res.Extracted)).
				Msg("Extraction succeeded")
			return res, attempts
		}

		evt := log.Warn().Str("provider", p.Name()).Int("attempt", attempts)
		if IsTransient(err) {
			evt.Err(err).Msg("Transient provider failure")
		} else {
			evt.Err(err).Msg("Permanent provider failure")
		}

		if ctx.Err() != nil {
			break
		}
		if i < c.retries-1 {
			c.sleep(ctx, c.retryDelay*(1<<i))
		}
	}
	return nil, attempts
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
