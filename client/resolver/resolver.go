package resolver

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mindmaxed/entitlement-sync/metrics"
)

const DefaultPollInterval = 2000 * time.Millisecond

// Authorizer reports live plan membership for a user.
type Authorizer interface {
	HasPlan(ctx context.Context, userID, planID string) (bool, error)
}

// ProfileReader reads the out-of-band whitelist flag from the user profile.
type ProfileReader interface {
	IsWhitelisted(ctx context.Context, userID string) (bool, error)
}

type State struct {
	HasAccess bool
	IsLoading bool
}

type Options struct {
	PollInterval time.Duration
}

// Access is the resolver's reduction of its two inputs.
func Access(hasPaidAccess, isWhitelisted bool) bool {
	return hasPaidAccess || isWhitelisted
}

// Resolver keeps a user's access state current by polling. It is owned by
// one view: Start/SetUser/Stop are not meant to race each other.
type Resolver struct {
	authz    Authorizer
	profile  ProfileReader
	plans    []string
	interval time.Duration

	mu          sync.Mutex
	state       State
	subscribers []func(State)
	cancel      context.CancelFunc
	done        chan struct{}

	// subscriber callbacks currently running
	notifying atomic.Int32
}

// New builds a resolver. plans are the plan IDs that grant the primary
// feature; membership in any of them is paid access.
func New(authz Authorizer, profile ProfileReader, plans []string, opts Options) *Resolver {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Resolver{
		authz:    authz,
		profile:  profile,
		plans:    plans,
		interval: interval,
		state:    State{IsLoading: true},
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn to receive every published state.
func (r *Resolver) Subscribe(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Resolver) Start(userID string) {
	r.SetUser(userID)
}

// SetUser tears down any running poll and resolves for userID. An empty
// userID means signed out: access is false and nothing is polled.
func (r *Resolver) SetUser(userID string) {
	r.Stop()

	if userID == "" {
		r.publish(context.Background(), State{})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.poll(ctx, userID, done)
}

// Stop cancels the poll and waits for it. No subscriber is called for the
// stopped poll after Stop returns.
//
// Stop may be called from a subscriber. It then cancels without waiting: the
// poll goroutine is the caller and exits once the callback returns.
func (r *Resolver) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	if r.notifying.Load() > 0 {
		// every later callback checks ctx first
		return
	}
	<-done
}

func (r *Resolver) poll(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.tick(ctx, userID)
	for {
		select {
		case <-t.C:
			r.tick(ctx, userID)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Resolver) tick(ctx context.Context, userID string) {
	if ctx.Err() != nil {
		return
	}

	hasAccess := r.resolve(ctx, userID)
	if ctx.Err() != nil {
		// torn down while resolving
		return
	}

	r.publish(ctx, State{HasAccess: hasAccess})
}

func (r *Resolver) resolve(ctx context.Context, userID string) bool {
	logger := log.With().Str("user_id", userID).Logger()

	paid, err := r.hasPaidAccess(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("Plan check failed, treating as no paid access until next tick")
			metrics.ResolverTicksTotal.WithLabelValues("error").Inc()
		}
		paid = false
	}

	whitelisted := false
	if !paid {
		whitelisted, err = r.profile.IsWhitelisted(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn().Err(err).Msg("Whitelist check failed")
				metrics.ResolverTicksTotal.WithLabelValues("error").Inc()
			}
			whitelisted = false
		}
	}

	hasAccess := Access(paid, whitelisted)
	if hasAccess {
		metrics.ResolverTicksTotal.WithLabelValues("granted").Inc()
	} else {
		metrics.ResolverTicksTotal.WithLabelValues("locked").Inc()
	}

	return hasAccess
}

// hasPaidAccess ORs membership over every plan that answered. A failed check
// only decides the result when no other plan grants access.
func (r *Resolver) hasPaidAccess(ctx context.Context, userID string) (bool, error) {
	var errs []error
	for _, plan := range r.plans {
		ok, err := r.authz.HasPlan(ctx, userID, plan)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

func (r *Resolver) publish(ctx context.Context, s State) {
	r.mu.Lock()
	if ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.state = s
	subscribers := slices.Clone(r.subscribers)
	r.mu.Unlock()

	for _, fn := range subscribers {
		if !r.notify(ctx, fn, s) {
			return
		}
	}
}

func (r *Resolver) notify(ctx context.Context, fn func(State), s State) bool {
	r.notifying.Add(1)
	defer r.notifying.Add(-1)

	if ctx.Err() != nil {
		return false
	}
	fn(s)
	return true
}
