package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestCheckEnv(t *testing.T) {
	chdirTemp(t)

	for _, key := range []string{"MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET", "MPESA_PASS_KEY", "MPESA_SHORT_CODE", "MPESA_CALLBACK_URL"} {
		t.Setenv(key, "")
	}
	assert.Equal(t, 1, checkEnv())

	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_PASS_KEY", "pass")
	t.Setenv("MPESA_SHORT_CODE", "174379")
	t.Setenv("MPESA_CALLBACK_URL", "http://example.com/callback")
	assert.Equal(t, 1, checkEnv(), "callback must be https")

	t.Setenv("MPESA_CALLBACK_URL", "https://example.com/api/v1/payments/callback")
	assert.Equal(t, 0, checkEnv())
}
