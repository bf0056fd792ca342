// Package guard decides whether a protected subtree may render. A guard
// mount starts unknown, shows a loading placeholder, probes the session
// once and settles on authorized or unauthorized for the rest of its life.
package guard

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tasklane/tasklane/internal/principal"
)

// Prober reports whether the caller holds a live session for role.
type Prober interface {
	Probe(ctx context.Context, role principal.Role) (principal.Principal, bool)
}

// View receives the render decisions of one mount. Loading is always called
// first and exactly one of Authorized or Redirect follows, unless the mount
// is unmounted before the probe settles.
type View interface {
	Loading()
	Authorized(p principal.Principal)
	Redirect(target string)
}

// Guard is a role-parameterized route guard.
type Guard struct {
	config     RoleConfig
	constraint Constraint
	prober     Prober
	warmup     *Warmup
	clock      clockwork.Clock
	logger     *slog.Logger
	observe    func(principal.Role, State)
}

// Option customises a Guard.
type Option func(*Guard)

// WithConstraint restricts the roles the guard authorizes.
func WithConstraint(c Constraint) Option {
	return func(g *Guard) { g.constraint = c }
}

// WithWarmup shares a warm-up delay across guards.
func WithWarmup(w *Warmup) Option {
	return func(g *Guard) { g.warmup = w }
}

// WithClock sets the clock used for the timeout race.
func WithClock(clock clockwork.Clock) Option {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers fn to be told about every terminal decision.
func WithObserver(fn func(role principal.Role, state State)) Option {
	return func(g *Guard) { g.observe = fn }
}

// New builds a guard for config probing through prober.
func New(config RoleConfig, prober Prober, opts ...Option) *Guard {
	g := &Guard{
		config: config,
		prober: prober,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the role configuration of the guard.
func (g *Guard) Config() RoleConfig {
	return g.config
}

// RedirectTarget returns the login location, remembering from for the
// post-login return.
func (g *Guard) RedirectTarget(from string) string {
	if from == "" || from == g.config.LoginPath {
		return g.config.LoginPath
	}
	return g.config.LoginPath + "?redirect=" + url.QueryEscape(from)
}

// Mount starts a guard instance for the location from. view.Loading is
// called before Mount returns.
func (g *Guard) Mount(ctx context.Context, from string, view View) *Mount {
	ctx, cancel := context.WithCancel(ctx)
	m := &Mount{
		state:   StateUnknown,
		mounted: true,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	view.Loading()
	go func() {
		defer close(m.done)
		defer cancel()
		ev := g.evaluate(ctx, g.prober)
		m.settle(g, ev, from, view)
	}()
	return m
}

// Decide runs one synchronous evaluation with prober, for callers that
// have no loading phase to render, such as HTTP middleware.
func (g *Guard) Decide(ctx context.Context, prober Prober) (State, principal.Principal) {
	ev := g.evaluate(ctx, prober)
	state := Reduce(StateUnknown, ev, g.config.Matches, g.constraint)
	g.notify(state)
	if state != StateAuthorized {
		return state, nil
	}
	return state, ev.Principal
}

func (g *Guard) notify(state State) {
	if g.observe != nil {
		g.observe(g.config.Role, state)
	}
}

func (g *Guard) evaluate(ctx context.Context, prober Prober) Event {
	if err := g.warmup.Wait(ctx); err != nil {
		return Event{Kind: EventUnauthenticated}
	}

	type result struct {
		p  principal.Principal
		ok bool
	}
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make(chan result, 1)
	go func() {
		p, ok := prober.Probe(probeCtx, g.config.Role)
		results <- result{p: p, ok: ok}
	}()

	var timeout <-chan time.Time
	if g.config.Timeout > 0 {
		timer := g.clock.NewTimer(g.config.Timeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	select {
	case res := <-results:
		if !res.ok || res.p == nil {
			return Event{Kind: EventUnauthenticated}
		}
		return Event{Kind: EventAuthenticated, Principal: res.p}
	case <-timeout:
		g.logger.Warn("session probe timed out",
			slog.String("role", g.config.Role.String()),
			slog.Duration("timeout", g.config.Timeout))
		return Event{Kind: EventTimedOut}
	case <-ctx.Done():
		return Event{Kind: EventUnauthenticated}
	}
}

// Mount is one live guard instance.
type Mount struct {
	mu        sync.Mutex
	state     State
	principal principal.Principal
	mounted   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// settle records the decision under mu and delivers it to view after
// releasing the lock, so callbacks may call back into the mount.
func (m *Mount) settle(g *Guard, ev Event, from string, view View) {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return
	}
	m.state = Reduce(m.state, ev, g.config.Matches, g.constraint)
	state := m.state
	if state == StateAuthorized {
		m.principal = ev.Principal
	}
	m.mu.Unlock()

	g.notify(state)
	g.logger.Debug("guard settled",
		slog.String("role", g.config.Role.String()),
		slog.String("state", state.String()))
	if state == StateAuthorized {
		view.Authorized(ev.Principal)
		return
	}
	view.Redirect(g.RedirectTarget(from))
}

// State returns the current state.
func (m *Mount) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Principal returns the authorized principal, nil otherwise.
func (m *Mount) Principal() principal.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// Done is closed once the mount has settled or been unmounted.
func (m *Mount) Done() <-chan struct{} {
	return m.done
}

// Unmount discards any in-flight probe. A decision already committed is
// still delivered; nothing else reaches the view after Unmount returns. It
// is safe to call from inside a View callback.
func (m *Mount) Unmount() {
	m.mu.Lock()
	m.mounted = false
	m.mu.Unlock()
	m.cancel()
}
