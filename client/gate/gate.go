package gate

import (
	"sync"

	"github.com/mindmaxed/entitlement-sync/client/resolver"
)

type State int

const (
	Loading State = iota
	Locked
	Granted
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Locked:
		return "locked"
	case Granted:
		return "granted"
	}
	return "unknown"
}

// Decide maps the resolver output to exactly one gate state.
func Decide(isLoading, hasAccess bool) State {
	switch {
	case isLoading:
		return Loading
	case hasAccess:
		return Granted
	default:
		return Locked
	}
}

// View is what the gate drives. Locked shows the upsell/pricing surface,
// Granted shows the gated feature.
type View interface {
	Loading()
	Locked()
	Granted()
}

// Gate renders one of three states from the current resolver output. It
// keeps no history: every Render decides from its input alone.
type Gate struct {
	view View

	mu      sync.Mutex
	current State
}

func New(v View) *Gate {
	return &Gate{view: v, current: Loading}
}

func (g *Gate) Current() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *Gate) Render(s resolver.State) State {
	g.mu.Lock()
	next := g.decide(s)
	g.mu.Unlock()

	g.show(next)
	return next
}

// Bind keeps the gate on r's latest state. Every notification re-reads the
// resolver under the gate lock instead of trusting the delivered value.
func (g *Gate) Bind(r *resolver.Resolver) {
	refresh := func() {
		g.mu.Lock()
		next := g.decide(r.State())
		g.mu.Unlock()

		g.show(next)
	}

	r.Subscribe(func(resolver.State) { refresh() })
	refresh()
}

func (g *Gate) decide(s resolver.State) State {
	g.current = Decide(s.IsLoading, s.HasAccess)
	return g.current
}

func (g *Gate) show(s State) {
	switch s {
	case Loading:
		g.view.Loading()
	case Locked:
		g.view.Locked()
	case Granted:
		g.view.Granted()
	}
}
