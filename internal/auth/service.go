package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/shared"
)

// CodeMessage is handed to the Dispatcher for delivery.
type CodeMessage struct {
	AdminID   string
	Email     string
	Name      string
	Code      string
	ExpiresIn time.Duration
}

// Dispatcher delivers verification codes out of band.
type Dispatcher interface {
	DispatchCode(ctx context.Context, msg CodeMessage) error
}

// Auditor records authentication events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig collects the dependencies of Service.
type ServiceConfig struct {
	Repo       Repository
	Codes      *VerificationStore
	Dispatcher Dispatcher
	Auditor    Auditor
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	repo       Repository
	codes      *VerificationStore
	dispatcher Dispatcher
	auditor    Auditor
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		repo:       cfg.Repo,
		codes:      cfg.Codes,
		dispatcher: cfg.Dispatcher,
		auditor:    cfg.Auditor,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if svc.clock == nil {
		svc.clock = clockwork.NewRealClock()
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// dummyHash keeps unknown identifiers as slow as wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("tasklane-dummy-password"), bcrypt.DefaultCost)
	return hash
})

// CanonicalIdentifier is the stored form of a username or email. Lookups
// compare lower(stored) against NormalizeIdentifier, so writers must store
// this form for non-ASCII identifiers to match.
func CanonicalIdentifier(identifier string) string {
	return norm.NFKC.String(strings.TrimSpace(identifier))
}

// NormalizeIdentifier folds a username or email for lookup.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(CanonicalIdentifier(identifier))
}

// Authenticate validates identifier/password credentials for role. Unknown
// identifiers, inactive accounts and wrong passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, role principal.Role, identifier, password string) (*Account, error) {
	account, err := s.repo.FindByIdentifier(ctx, role, NormalizeIdentifier(identifier))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

// Login checks credentials and decides whether a session may be issued now
// or a step-up challenge is required first.
func (s *Service) Login(ctx context.Context, role principal.Role, identifier, password, remoteIP string) (LoginOutcome, error) {
	account, err := s.Authenticate(ctx, role, identifier, password)
	if err != nil {
		s.audit(ctx, shared.AuditLog{Role: string(role), Action: "login", Outcome: "failure", RemoteIP: remoteIP})
		return LoginOutcome{}, err
	}
	if role == principal.RoleAdmin && account.RequiresVerification {
		s.audit(ctx, shared.AuditLog{Role: string(role), ActorID: account.ID, Action: "login", Outcome: "challenge", RemoteIP: remoteIP})
		return LoginOutcome{Account: account, Challenge: true}, nil
	}
	if err := s.complete(ctx, account); err != nil {
		return LoginOutcome{}, err
	}
	s.audit(ctx, shared.AuditLog{Role: string(role), ActorID: account.ID, Action: "login", Outcome: "success", RemoteIP: remoteIP})
	return LoginOutcome{Account: account}, nil
}

// IssueCode re-checks admin credentials, replaces any pending code and
// queues the new one for delivery. It returns the pending identifier.
func (s *Service) IssueCode(ctx context.Context, identifier, password string) (string, time.Duration, error) {
	account, err := s.Authenticate(ctx, principal.RoleAdmin, identifier, password)
	if err != nil {
		return "", 0, err
	}
	code, err := s.codes.Issue(ctx, account.ID)
	if err != nil {
		return "", 0, err
	}
	msg := CodeMessage{
		AdminID:   account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Code:      code,
		ExpiresIn: s.codes.TTL(),
	}
	if err := s.dispatcher.DispatchCode(ctx, msg); err != nil {
		s.logger.Error("dispatch verification code", slog.String("admin_id", account.ID), slog.Any("error", err))
		return "", 0, fmt.Errorf("%w: %v", shared.ErrDispatchFailed, err)
	}
	s.audit(ctx, shared.AuditLog{Role: string(principal.RoleAdmin), ActorID: account.ID, Action: "send_code", Outcome: "success"})
	return account.ID, s.codes.TTL(), nil
}

// VerifyCode consumes the pending code for adminID. Unknown admins, missing
// codes and wrong codes all yield shared.ErrVerificationFailed.
func (s *Service) VerifyCode(ctx context.Context, adminID, code, remoteIP string) (*Account, error) {
	if err := s.codes.Consume(ctx, adminID, code); err != nil {
		if errors.Is(err, shared.ErrVerificationFailed) {
			s.audit(ctx, shared.AuditLog{Role: string(principal.RoleAdmin), ActorID: adminID, Action: "verify", Outcome: "failure", RemoteIP: remoteIP})
		}
		return nil, err
	}
	account, err := s.repo.FindByID(ctx, principal.RoleAdmin, adminID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrVerificationFailed
		}
		return nil, fmt.Errorf("auth: find admin: %w", err)
	}
	if !account.IsActive {
		return nil, shared.ErrVerificationFailed
	}
	if err := s.complete(ctx, account); err != nil {
		return nil, err
	}
	s.audit(ctx, shared.AuditLog{Role: string(principal.RoleAdmin), ActorID: account.ID, Action: "verify", Outcome: "success", RemoteIP: remoteIP})
	return account, nil
}

// Profile loads the account bound to a session. Accounts that disappeared
// or were deactivated since login report shared.ErrSessionMissing.
func (s *Service) Profile(ctx context.Context, role principal.Role, id string) (*Account, error) {
	account, err := s.repo.FindByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrSessionMissing
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, shared.ErrSessionMissing
	}
	return account, nil
}

// Logout clears presence state for the principal leaving the session.
func (s *Service) Logout(ctx context.Context, role principal.Role, id string) error {
	if role == principal.RoleCustomerService && id != "" {
		if err := s.repo.SetOnline(ctx, id, false); err != nil {
			return fmt.Errorf("auth: set offline: %w", err)
		}
	}
	s.audit(ctx, shared.AuditLog{Role: string(role), ActorID: id, Action: "logout", Outcome: "success"})
	return nil
}

func (s *Service) complete(ctx context.Context, account *Account) error {
	switch account.Role {
	case principal.RoleAdmin:
		now := s.clock.Now().UTC()
		if err := s.repo.TouchLastLogin(ctx, account.ID, now); err != nil {
			return fmt.Errorf("auth: touch last login: %w", err)
		}
		account.LastLogin = &now
	case principal.RoleCustomerService:
		if err := s.repo.SetOnline(ctx, account.ID, true); err != nil {
			return fmt.Errorf("auth: set online: %w", err)
		}
		account.IsOnline = true
	}
	return nil
}

func (s *Service) audit(ctx context.Context, entry shared.AuditLog) {
	if s.auditor == nil {
		return
	}
	entry.At = s.clock.Now()
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("record auth event", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
