package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a provider's breaker rejects the call
var ErrOpen = errors.New("provider circuit open")

// Settings configures every breaker created by a Set
type Settings struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
	Interval            time.Duration
	// Benign reports errors that say nothing about provider health, such as a missing ticker.
	// They do not count towards tripping the breaker.
	Benign func(err error) bool
}

// Set holds one breaker per provider
type Set struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSet creates an empty breaker set
func NewSet(settings Settings) *Set {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	return &Set{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *Set) get(provider string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[provider]; ok {
		return cb
	}

	threshold := s.settings.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:     provider,
		Interval: s.settings.Interval,
		Timeout:  s.settings.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || (s.settings.Benign != nil && s.settings.Benign(err))
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Provider circuit breaker changed state")
		},
	}
	cb := gobreaker.NewCircuitBreaker(st)
	s.breakers[provider] = cb
	return cb
}

// Execute runs fn under the provider's breaker
func (s *Set) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	out, err := s.get(provider).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return out, err
}

// State reports the breaker state for a provider, "closed" when never used
func (s *Set) State(provider string) string {
	s.mu.Lock()
	cb, ok := s.breakers[provider]
	s.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// Call is a typed convenience wrapper over Execute
func Call[T any](s *Set, provider string, fn func() (T, error)) (T, error) {
	out, err := s.Execute(provider, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}
