package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPayoutPolicyDefaultsWhenFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPayoutPolicyHolder(Config{}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, "Partners payout (%s)", policy.TransferDescription)
	assert.Equal(t, "You've been paid!", policy.NotificationSubject)
	assert.False(t, policy.CompleteSettledInvoices)
}

func TestPayoutPolicyLoadsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payouts.yml")
	content := []byte("payouts:\n  transferDescription: \"Acme payout (%s)\"\n  completeSettledInvoices: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPayoutPolicyHolder(Config{PayoutPolicyPath: path}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, "Acme payout (%s)", policy.TransferDescription)
	assert.True(t, policy.CompleteSettledInvoices)
	// unset keys fall back to defaults
	assert.Equal(t, "Partners <system@partnerpay.dev>", policy.NotificationFrom)
}

func TestPayoutPolicyRejectsInvalidDescription(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payouts.yml")
	content := []byte("payouts:\n  transferDescription: \"no placeholder\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewPayoutPolicyHolder(Config{PayoutPolicyPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestValidatePayoutPolicyDescription(t *testing.T) {
	tests := []struct {
		desc  string
		valid bool
	}{
		{desc: "Partners payout (%s)", valid: true},
		{desc: "100%% of %s", valid: true},
		{desc: "no placeholder", valid: false},
		{desc: "%s and %s", valid: false},
		{desc: "%d payout for %s", valid: false},
		{desc: "payout %s at %v", valid: false},
		{desc: "literal %%s then %s", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			policy := DefaultPayoutPolicy()
			policy.TransferDescription = tt.desc
			err := validatePayoutPolicy(policy)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGetenvDurationFallsBack(t *testing.T) {
	t.Setenv("EMBED_TOKEN_TTL", "nonsense")
	assert.Equal(t, "2h0m0s", getenvDuration("EMBED_TOKEN_TTL", 7200e9).String())

	t.Setenv("EMBED_TOKEN_TTL", "30m")
	assert.Equal(t, "30m0s", getenvDuration("EMBED_TOKEN_TTL", 7200e9).String())
}
