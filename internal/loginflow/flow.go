// Package loginflow drives a two-step login from the client side: credentials
// first, then an optional one-time code when the server asks for step-up
// verification. A Flow is the state behind one login form.
package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/principal"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

var (
	// ErrSubmitInFlight rejects a submission while another one is pending.
	ErrSubmitInFlight = errors.New("loginflow: request already in flight")
	// ErrMissingCredentials rejects empty identifiers or secrets.
	ErrMissingCredentials = errors.New("loginflow: identifier and secret are required")
	// ErrNoPendingVerification rejects verification before a challenge.
	ErrNoPendingVerification = errors.New("loginflow: no pending verification")
	// ErrInvalidCodeFormat rejects codes that are not six digits.
	ErrInvalidCodeFormat = errors.New("loginflow: code must be 6 digits")
	// ErrWrongStep rejects operations that do not belong to the current step.
	ErrWrongStep = errors.New("loginflow: operation not valid in current step")
)

const (
	msgMissingCredentials = "Please enter your username and password"
	msgInvalidCode        = "Please enter the 6-digit verification code"
	msgNetwork            = "Could not reach the server, please try again"
	msgDispatchFailed     = "Could not send the verification code"
)

// Step is the visible stage of the form.
type Step int

const (
	StepCredentials Step = iota
	StepVerification
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepVerification:
		return "verification"
	case StepDone:
		return "done"
	default:
		return "credentials"
	}
}

// Authenticator is the subset of authclient.Client a flow needs.
type Authenticator interface {
	Login(ctx context.Context, role principal.Role, identifier, secret string) (authclient.LoginResult, error)
	SendVerificationCode(ctx context.Context, role principal.Role, identifier, secret string) (string, error)
	VerifyCode(ctx context.Context, role principal.Role, pendingID, code string) (principal.Principal, error)
}

// Snapshot is what a form renders.
type Snapshot struct {
	Role       principal.Role
	Step       Step
	Identifier string
	PendingID  string
	Loading    bool
	// Error is the inline message of the current step.
	Error string
	// Banner is a dismissible transport error.
	Banner    string
	Principal principal.Principal
}

// Flow is the login state machine for one role.
type Flow struct {
	role   principal.Role
	auth   Authenticator
	logger *slog.Logger

	mu         sync.Mutex
	step       Step
	identifier string
	secret     string
	pendingID  string
	loading    bool
	errMsg     string
	banner     string
	principal  principal.Principal
}

// New returns a flow for role starting at the credentials step.
func New(role principal.Role, auth Authenticator, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{role: role, auth: auth, logger: logger}
}

// Snapshot returns the current form state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{
		Role:       f.role,
		Step:       f.step,
		Identifier: f.identifier,
		PendingID:  f.pendingID,
		Loading:    f.loading,
		Error:      f.errMsg,
		Banner:     f.banner,
		Principal:  f.principal,
	}
}

// Submit sends credentials. Success finishes the flow, a challenge moves it
// to the verification step after dispatching a code, and a rejection stays
// on the credentials step with the server's reason.
func (f *Flow) Submit(ctx context.Context, identifier, secret string) (Snapshot, error) {
	identifier = strings.TrimSpace(identifier)

	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return f.Snapshot(), ErrSubmitInFlight
	}
	if f.step != StepCredentials {
		f.mu.Unlock()
		return f.Snapshot(), ErrWrongStep
	}
	f.identifier = identifier
	if identifier == "" || secret == "" {
		f.errMsg = msgMissingCredentials
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, ErrMissingCredentials
	}
	f.loading = true
	f.errMsg = ""
	f.banner = ""
	f.mu.Unlock()

	res, err := f.auth.Login(ctx, f.role, identifier, secret)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.loading = false
		f.logger.Warn("login request failed", slog.String("role", f.role.String()), slog.Any("error", err))
		f.banner = msgNetwork
		return f.snapshotLocked(), nil
	}

	switch res.Outcome {
	case authclient.OutcomeSuccess:
		f.loading = false
		f.finishLocked(res.Principal)
	case authclient.OutcomeChallenge:
		f.step = StepVerification
		f.pendingID = res.PendingID
		f.secret = secret
		f.dispatchLocked(ctx)
		f.loading = false
	default:
		f.loading = false
		f.errMsg = res.Reason
		if f.errMsg == "" {
			f.errMsg = authclient.FallbackLoginReason
		}
	}
	return f.snapshotLocked(), nil
}

// Verify submits a one-time code for the pending challenge.
func (f *Flow) Verify(ctx context.Context, code string) (Snapshot, error) {
	code = strings.TrimSpace(code)

	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return f.Snapshot(), ErrSubmitInFlight
	}
	if f.step != StepVerification || f.pendingID == "" {
		f.mu.Unlock()
		return f.Snapshot(), ErrNoPendingVerification
	}
	if !validCode(code) {
		f.errMsg = msgInvalidCode
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, ErrInvalidCodeFormat
	}
	pendingID := f.pendingID
	f.loading = true
	f.errMsg = ""
	f.mu.Unlock()

	p, err := f.auth.VerifyCode(ctx, f.role, pendingID, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	switch {
	case err == nil:
		f.finishLocked(p)
	case errors.Is(err, authclient.ErrTransport):
		f.logger.Warn("verify request failed", slog.String("role", f.role.String()), slog.Any("error", err))
		f.banner = msgNetwork
	default:
		f.errMsg = authclient.ReasonOf(err, authclient.FallbackVerifyReason)
	}
	return f.snapshotLocked(), nil
}

// Resend dispatches a new code with the retained secret. The new pending
// identifier supersedes the old one.
func (f *Flow) Resend(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loading {
		return f.snapshotLocked(), ErrSubmitInFlight
	}
	if f.step != StepVerification || f.pendingID == "" {
		return f.snapshotLocked(), ErrNoPendingVerification
	}
	f.loading = true
	f.errMsg = ""
	f.dispatchLocked(ctx)
	f.loading = false
	return f.snapshotLocked(), nil
}

// dispatchLocked asks for a code. It releases the lock around the network
// call; loading must already be set so no other operation can start.
func (f *Flow) dispatchLocked(ctx context.Context) {
	identifier, secret := f.identifier, f.secret
	f.mu.Unlock()
	pendingID, err := f.auth.SendVerificationCode(ctx, f.role, identifier, secret)
	f.mu.Lock()

	if err != nil {
		f.logger.Warn("verification code dispatch failed", slog.String("role", f.role.String()), slog.Any("error", err))
		if errors.Is(err, authclient.ErrTransport) {
			f.banner = msgNetwork
		} else {
			f.banner = authclient.ReasonOf(err, msgDispatchFailed)
		}
		return
	}
	f.banner = ""
	f.pendingID = pendingID
}

// DismissBanner clears the transport error banner.
func (f *Flow) DismissBanner() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banner = ""
}

// Back abandons the verification step and forgets the retained secret.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loading {
		return ErrSubmitInFlight
	}
	if f.step != StepVerification {
		return ErrWrongStep
	}
	f.step = StepCredentials
	f.pendingID = ""
	f.secret = ""
	f.errMsg = ""
	f.banner = ""
	return nil
}

func (f *Flow) finishLocked(p principal.Principal) {
	f.step = StepDone
	f.principal = p
	f.secret = ""
	f.pendingID = ""
	f.errMsg = ""
	f.banner = ""
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
