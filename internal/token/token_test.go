package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_Issue(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuerWithClock(func() time.Time { return fixed })

	g, err := iss.Issue(24*time.Hour, 1)
	require.NoError(t, err)

	assert.Equal(t, fixed.Add(24*time.Hour), g.ExpiresAt)
	assert.Equal(t, 1, g.MaxDownloads)

	// 32 raw bytes encode to 43 unpadded base64url characters.
	assert.Len(t, g.Token, 43)
	raw, err := base64.RawURLEncoding.DecodeString(g.Token)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)
	assert.NotContains(t, g.Token, "=")
	assert.NotContains(t, g.Token, "/")
	assert.NotContains(t, g.Token, "+")
}

func TestIssuer_Issue_Unique(t *testing.T) {
	iss := NewIssuer()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		g, err := iss.Issue(time.Hour, 5)
		require.NoError(t, err)
		_, dup := seen[g.Token]
		require.False(t, dup, "duplicate token after %d issuances", i)
		seen[g.Token] = struct{}{}
	}
}

func TestIssuer_Issue_InvalidQuota(t *testing.T) {
	iss := NewIssuer()

	_, err := iss.Issue(time.Hour, 0)
	assert.Error(t, err)

	_, err = iss.Issue(time.Hour, -3)
	assert.Error(t, err)
}
