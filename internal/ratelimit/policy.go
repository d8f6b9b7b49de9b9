package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned when a policy cannot admit anything.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Policy bounds how many videos may start within a rolling period.
type Policy struct {
	MaxVideos int
	Period    time.Duration
}

// Validate reports whether the policy has a positive limit and period.
func (p Policy) Validate() error {
	if p.MaxVideos <= 0 {
		return fmt.Errorf("%w: max videos must be positive, got %d", ErrInvalidPolicy, p.MaxVideos)
	}
	if p.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %s", ErrInvalidPolicy, p.Period)
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%d per %s", p.MaxVideos, p.Period)
}

// PolicySource supplies the current policy.
type PolicySource interface {
	Policy(ctx context.Context) (Policy, error)
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy Policy

// Policy implements PolicySource.
func (s StaticPolicy) Policy(context.Context) (Policy, error) {
	return Policy(s), nil
}
