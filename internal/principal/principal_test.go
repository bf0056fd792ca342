package principal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoleAcceptsAliases(t *testing.T) {
	cases := map[string]Role{
		"user":             RoleUser,
		" Admin ":          RoleAdmin,
		"service":          RoleCustomerService,
		"customer-service": RoleCustomerService,
		"customer_service": RoleCustomerService,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("root")
	require.Error(t, err)
}

func TestRoleKey(t *testing.T) {
	assert.Equal(t, "user", RoleUser.Key())
	assert.Equal(t, "admin", RoleAdmin.Key())
	assert.Equal(t, "service", RoleCustomerService.Key())
}

func TestDecodeEnvelopeAdmin(t *testing.T) {
	body := []byte(`{"admin":{"id":"A1234","username":"A1234","name":"Ada","is_super_admin":true,"is_active":true,"created_at":"2024-01-02T03:04:05Z","last_login":null}}`)

	p, err := DecodeEnvelope(RoleAdmin, body)
	require.NoError(t, err)

	admin, ok := p.(*Admin)
	require.True(t, ok)
	assert.Equal(t, "A1234", admin.GetID())
	assert.True(t, admin.IsSuperAdmin)
	assert.Nil(t, admin.LastLogin)
	assert.Equal(t, RoleAdmin, admin.GetRole())
}

func TestDecodeEnvelopeFallsBackToBareObject(t *testing.T) {
	p, err := DecodeEnvelope(RoleCustomerService, []byte(`{"id":"cs-9","name":"Kim","avg_rating":4.5,"total_ratings":12,"is_online":true}`))
	require.NoError(t, err)

	agent := p.(*CustomerServiceAgent)
	assert.Equal(t, 4.5, agent.AvgRating)
	assert.Equal(t, 12, agent.TotalRatings)
	assert.True(t, agent.IsOnline)
}

func TestDecodeRejectsIncompletePayload(t *testing.T) {
	_, err := Decode(RoleUser, []byte(`{"name":"nobody"}`))
	require.ErrorIs(t, err, ErrIncomplete)

	_, err = Decode(RoleUser, []byte(`[1,2,3]`))
	require.Error(t, err)

	_, err = DecodeEnvelope(RoleAdmin, []byte(`"oops"`))
	require.Error(t, err)
}

func TestEnvelopeUsesRoleKey(t *testing.T) {
	data, err := json.Marshal(Envelope(&CustomerServiceAgent{ID: "cs-1", Name: "Kim"}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":{"id":"cs-1"`)
}
