package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Window is a fixed counting window: at most Limit submissions per Length.
type Window struct {
	Limit  int
	Length time.Duration
}

// Unlimited reports whether the window lets everything through.
func (w Window) Unlimited() bool {
	return w.Limit <= 0 || w.Length <= 0
}

// slot returns the index of the window containing now and when it closes.
func (w Window) slot(now time.Time) (int64, time.Time) {
	length := int64(w.Length)
	index := now.UnixNano() / length
	return index, time.Unix(0, (index+1)*length).UTC()
}

// Limiter counts submissions per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, w Window, now time.Time) (Result, error)
}

// Scope indicates which dimension the rate limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAdmin
	ScopeMembership
)

// Decision describes the resolved window and the scope it is counted in.
type Decision struct {
	Window       Window
	Scope        Scope
	MembershipID uint64
}
