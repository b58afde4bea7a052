package daraja

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

func TestConfigValidate(t *testing.T) {
	cfg := testConfig("")
	require.NoError(t, cfg.Validate())

	insecure := cfg
	insecure.CallbackURL = "http://example.com/callback"
	assert.Error(t, insecure.Validate())

	badEnv := cfg
	badEnv.Environment = "staging"
	assert.Error(t, badEnv.Validate())

	empty := Config{Environment: EnvironmentSandbox}
	err := empty.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConsumerKey")
	assert.Contains(t, err.Error(), "CallbackURL")
}

func TestResolvedBaseURL(t *testing.T) {
	cfg := testConfig("")
	assert.Equal(t, SandboxBaseURL, cfg.ResolvedBaseURL())

	cfg.Environment = EnvironmentProduction
	assert.Equal(t, ProductionBaseURL, cfg.ResolvedBaseURL())

	cfg.BaseURL = "http://127.0.0.1:9999/"
	assert.Equal(t, "http://127.0.0.1:9999", cfg.ResolvedBaseURL())
}

func TestConfigFromEnv(t *testing.T) {
	prev := env.Env
	t.Cleanup(func() { env.Env = prev })

	env.Env = map[string]string{
		"MPESA_CONSUMER_KEY":    "k",
		"MPESA_CONSUMER_SECRET": "s",
		"MPESA_PASS_KEY":        "p",
		"MPESA_SHORT_CODE":      "174379",
		"MPESA_CALLBACK_URL":    "https://example.com/cb",
		"MPESA_ENVIRONMENT":     "Production",
		"MPESA_HTTP_TIMEOUT":    "5s",
		"MPESA_RATE_LIMIT":      "2.5",
		"MPESA_RATE_BURST":      "5",
	}

	cfg := ConfigFromEnv()
	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, MissingEnv())

	delete(env.Env, "MPESA_PASS_KEY")
	t.Setenv("MPESA_PASS_KEY", "")
	assert.Equal(t, []string{"MPESA_PASS_KEY"}, MissingEnv())
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
