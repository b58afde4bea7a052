package daraja

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"

	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	DefaultHTTPTimeout = 15 * time.Second
)

// RequiredEnv lists the variables that must be present to talk to Daraja.
var RequiredEnv = []string{
	"MPESA_CONSUMER_KEY",
	"MPESA_CONSUMER_SECRET",
	"MPESA_PASS_KEY",
	"MPESA_SHORT_CODE",
	"MPESA_CALLBACK_URL",
}

type Config struct {
	ConsumerKey    string      `validate:"required"`
	ConsumerSecret string      `validate:"required"`
	PassKey        string      `validate:"required"`
	ShortCode      string      `validate:"required,numeric"`
	CallbackURL    string      `validate:"required,url,startswith=https://"`
	Environment    Environment `validate:"oneof=sandbox production"`
	// BaseURL overrides the environment's default host.
	BaseURL     string `validate:"omitempty,url"`
	HTTPTimeout time.Duration
	// RateLimit caps outbound requests per second. Zero disables the limit.
	RateLimit float64 `validate:"gte=0"`
	RateBurst int     `validate:"gte=0"`
}

// ConfigFromEnv reads the MPESA_* variables through the env package.
func ConfigFromEnv() Config {
	cfg := Config{
		ConsumerKey:    strings.TrimSpace(env.GetEnv("MPESA_CONSUMER_KEY", "")),
		ConsumerSecret: strings.TrimSpace(env.GetEnv("MPESA_CONSUMER_SECRET", "")),
		PassKey:        strings.TrimSpace(env.GetEnv("MPESA_PASS_KEY", "")),
		ShortCode:      strings.TrimSpace(env.GetEnv("MPESA_SHORT_CODE", "")),
		CallbackURL:    strings.TrimSpace(env.GetEnv("MPESA_CALLBACK_URL", "")),
		Environment:    Environment(strings.ToLower(strings.TrimSpace(env.GetEnv("MPESA_ENVIRONMENT", string(EnvironmentSandbox))))),
		BaseURL:        strings.TrimSpace(env.GetEnv("MPESA_BASE_URL", "")),
		HTTPTimeout:    DefaultHTTPTimeout,
	}
	if v, err := strconv.ParseFloat(env.GetEnv("MPESA_RATE_LIMIT", ""), 64); err == nil && v > 0 {
		cfg.RateLimit = v
		cfg.RateBurst = 1
	}
	if v, err := strconv.Atoi(env.GetEnv("MPESA_RATE_BURST", "")); err == nil && v > 0 {
		cfg.RateBurst = v
	}
	if raw := strings.TrimSpace(env.GetEnv("MPESA_HTTP_TIMEOUT", "")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.HTTPTimeout = d
		}
	}
	return cfg
}

// Validate reports every invalid field in one error.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid daraja config: %s", strings.Join(msgs, ", "))
}

// ResolvedBaseURL returns the override or the environment's default host, without trailing slash.
func (c Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == EnvironmentProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// MissingEnv returns the required variables that are unset or blank.
func MissingEnv() []string {
	var missing []string
	for _, key := range RequiredEnv {
		if strings.TrimSpace(env.GetEnv(key, "")) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
