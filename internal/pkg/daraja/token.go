package daraja

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenTTL   = 3599 * time.Second
	tokenSkew         = 60 * time.Second
	tokenFetchTimeout = 30 * time.Second
)

// FetchTokenFunc performs one credential exchange and returns the token and its lifetime.
type FetchTokenFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenSource caches a bearer token and refreshes it at most once at a time.
// Callers arriving during a refresh wait for and share its result.
type TokenSource struct {
	fetch FetchTokenFunc
	now   func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time

	group singleflight.Group
}

func NewTokenSource(fetch FetchTokenFunc) *TokenSource {
	return &TokenSource{fetch: fetch, now: time.Now}
}

// Token returns the cached token or obtains a new one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	// The refresh is detached from the caller so a cancelled caller does not
	// fail the others waiting on the same flight.
	ch := s.group.DoChan("token", func() (interface{}, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		tok, ttl, err := s.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		if ttl <= 0 {
			ttl = defaultTokenTTL
		}

		s.mu.Lock()
		s.token = tok
		s.expires = s.now().Add(ttl - tokenSkew)
		s.mu.Unlock()
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call refreshes.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, true
	}
	return "", false
}
