package authclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tasklane/tasklane/internal/principal"
)

var errUnauthenticated = errors.New("authclient: unauthenticated")

// Probe asks the profile endpoint of role whether the carried session is
// live. Any failure, including transport errors, timeouts and malformed
// bodies, reports false; only a 200 with a complete principal reports true.
func (c *Client) Probe(ctx context.Context, role principal.Role) (principal.Principal, bool) {
	ep, ok := c.endpoints[role]
	if !ok || ep.Profile == "" {
		return nil, false
	}
	if c.probes == nil {
		p, err := c.probe(ctx, role, ep)
		return p, err == nil
	}

	// Callers share one request; a caller leaving early must not fail the others.
	shared := context.WithoutCancel(ctx)
	ch := c.probes.DoChan(string(role), func() (any, error) {
		return c.probe(shared, role, ep)
	})
	select {
	case <-ctx.Done():
		return nil, false
	case res := <-ch:
		if res.Err != nil {
			return nil, false
		}
		p, ok := res.Val.(principal.Principal)
		return p, ok && p != nil
	}
}

func (c *Client) probe(ctx context.Context, role principal.Role, ep Endpoints) (principal.Principal, error) {
	if ep.MarkerCheck {
		c.awaitMarkers(ctx, role)
	}
	res, err := c.do(ctx, http.MethodGet, ep.Profile, nil)
	if err != nil {
		c.logger.Debug("session probe transport", slog.String("role", role.String()), slog.Any("error", err))
		return nil, err
	}
	if res.status != http.StatusOK {
		c.logger.Debug("session probe rejected", slog.String("role", role.String()), slog.Int("status", res.status))
		return nil, errUnauthenticated
	}
	p, err := principal.Decode(role, res.body)
	if err != nil {
		c.logger.Debug("session probe decode", slog.String("role", role.String()), slog.Any("error", err))
		return nil, err
	}
	return p, nil
}

// MarkersPresent reports whether the readable companion cookies for role are
// present. Presence is a hint only and never grants access.
func (c *Client) MarkersPresent(role principal.Role) bool {
	authName, idName := MarkerCookieNames(role)
	var authenticated, id bool
	for _, cookie := range c.cookies() {
		switch cookie.Name {
		case authName:
			authenticated = cookie.Value == "true"
		case idName:
			id = cookie.Value != ""
		}
	}
	return authenticated && id
}

func (c *Client) awaitMarkers(ctx context.Context, role principal.Role) {
	res := c.markerPolicy.Until(ctx, func() bool { return c.MarkersPresent(role) })
	if !res.OK() {
		c.logger.Debug("marker cookies absent, probing anyway",
			slog.String("role", role.String()),
			slog.Int("attempts", res.Attempts))
	}
}
