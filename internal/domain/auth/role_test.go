package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"PREMIUM_USER", RolePremiumUser},
		{"ROLE_ADMIN", RoleAdmin},
		{" premium_user ", RolePremiumUser},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRole_Invalid(t *testing.T) {
	for _, in := range []string{"", "root", "premium"} {
		_, err := ParseRole(in)
		assert.ErrorIs(t, err, ErrInvalidRole, in)
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1", Role: RoleAdmin})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, RoleAdmin, p.Role)
}
