package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tasklane/tasklane/internal/principal"
)

// Outcome discriminates the three login results.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeChallenge
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeChallenge:
		return "challenge"
	default:
		return "failure"
	}
}

// LoginResult is the decoded answer of a login endpoint.
type LoginResult struct {
	Outcome   Outcome
	Principal principal.Principal
	PendingID string
	Reason    string
	Status    int
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type challengeBody struct {
	AdminID   string `json:"admin_id"`
	PendingID string `json:"pending_id"`
	Message   string `json:"message"`
}

func (b challengeBody) id() string {
	if b.AdminID != "" {
		return b.AdminID
	}
	return b.PendingID
}

// Login submits credentials for role. Status 200 yields OutcomeSuccess, 202
// OutcomeChallenge and anything else OutcomeFailure with a normalized reason.
// The returned error is reserved for transport failures.
func (c *Client) Login(ctx context.Context, role principal.Role, identifier, secret string) (LoginResult, error) {
	ep, ok := c.endpoints[role]
	if !ok || ep.Login == "" {
		return LoginResult{}, ErrUnsupported
	}
	res, err := c.do(ctx, http.MethodPost, ep.Login, credentials{Username: identifier, Password: secret})
	if err != nil {
		return LoginResult{}, err
	}

	switch res.status {
	case http.StatusOK:
		p, err := principal.DecodeEnvelope(role, res.body)
		if err != nil {
			c.logger.Warn("login response decode", slog.String("role", role.String()), slog.Any("error", err))
			return LoginResult{Outcome: OutcomeFailure, Reason: FallbackLoginReason, Status: res.status}, nil
		}
		return LoginResult{Outcome: OutcomeSuccess, Principal: p, Status: res.status}, nil
	case http.StatusAccepted:
		var body challengeBody
		if err := json.Unmarshal(res.body, &body); err != nil || strings.TrimSpace(body.id()) == "" {
			c.logger.Warn("challenge response without pending id", slog.String("role", role.String()))
			return LoginResult{Outcome: OutcomeFailure, Reason: FallbackLoginReason, Status: res.status}, nil
		}
		return LoginResult{Outcome: OutcomeChallenge, PendingID: body.id(), Status: res.status}, nil
	default:
		return LoginResult{
			Outcome: OutcomeFailure,
			Reason:  NormalizeDetail(res.body, FallbackLoginReason),
			Status:  res.status,
		}, nil
	}
}

// SendVerificationCode asks the server to dispatch a fresh one-time code,
// superseding any earlier one, and returns the pending identifier.
func (c *Client) SendVerificationCode(ctx context.Context, role principal.Role, identifier, secret string) (string, error) {
	ep, ok := c.endpoints[role]
	if !ok || ep.SendCode == "" {
		return "", ErrUnsupported
	}
	res, err := c.do(ctx, http.MethodPost, ep.SendCode, credentials{Username: identifier, Password: secret})
	if err != nil {
		return "", err
	}
	if !isSuccess(res.status) {
		return "", &RejectedError{Status: res.status, Reason: NormalizeDetail(res.body, "could not send verification code")}
	}
	var body challengeBody
	if err := json.Unmarshal(res.body, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if id := strings.TrimSpace(body.id()); id != "" {
		return id, nil
	}
	return identifier, nil
}

type verifyBody struct {
	AdminID string `json:"admin_id"`
	Code    string `json:"code"`
}

// VerifyCode submits a one-time code for the pending identifier. On success
// the server has established the session and the principal is returned.
func (c *Client) VerifyCode(ctx context.Context, role principal.Role, pendingID, code string) (principal.Principal, error) {
	ep, ok := c.endpoints[role]
	if !ok || ep.Verify == "" {
		return nil, ErrUnsupported
	}
	res, err := c.do(ctx, http.MethodPost, ep.Verify, verifyBody{AdminID: pendingID, Code: code})
	if err != nil {
		return nil, err
	}
	if res.status != http.StatusOK {
		return nil, &RejectedError{Status: res.status, Reason: NormalizeDetail(res.body, FallbackVerifyReason)}
	}
	p, err := principal.DecodeEnvelope(role, res.body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return p, nil
}

// Logout ends the session for role. A 401 counts as already logged out.
func (c *Client) Logout(ctx context.Context, role principal.Role) error {
	ep, ok := c.endpoints[role]
	if !ok || ep.Logout == "" {
		return ErrUnsupported
	}
	res, err := c.do(ctx, http.MethodPost, ep.Logout, nil)
	if err != nil {
		return err
	}
	if isSuccess(res.status) || res.status == http.StatusUnauthorized {
		return nil
	}
	return &RejectedError{Status: res.status, Reason: NormalizeDetail(res.body, "logout failed")}
}
