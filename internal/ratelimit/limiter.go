// Package ratelimit provides keyed, windowed request counters with an atomic
// check-and-increment. Two implementations sit behind the same interface: a
// process-local map for single-instance deployments, and a SQLite-backed
// limiter whose counters live in the shared durable store.
package ratelimit

import (
	"fmt"
	"time"
)

// Result is the outcome of one Check call.
type Result struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Limiter is the keyed atomic-counter interface. Check performs
// read-or-create-window, increment, and compare as one serialized step per
// key; two concurrent calls for the same key never both observe the same
// pre-increment count.
type Limiter interface {
	Check(identifier, action string, maxRequests int, window time.Duration) (Result, error)
}

// Rule pairs a ceiling with its window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Abuse-throttling presets. Tunable, but these are the deployed defaults.
var (
	OTPPerUser    = Rule{Max: 3, Window: time.Hour}
	OTPPerIP      = Rule{Max: 10, Window: time.Hour}
	OTPPerContact = Rule{Max: 3, Window: time.Hour}
	FailedOTPUser = Rule{Max: 5, Window: 24 * time.Hour}
	LoginPerIP    = Rule{Max: 10, Window: 15 * time.Minute}
	LoginPerEmail = Rule{Max: 5, Window: 15 * time.Minute}
	SignupPerIP   = Rule{Max: 3, Window: time.Hour}
	InvitePerUser = Rule{Max: 10, Window: time.Hour}
)

// UserKey, IPKey, ContactKey, and EmailKey build namespaced identifiers so
// counters for different subjects never collide.
func UserKey(userID int64) string  { return fmt.Sprintf("user:%d", userID) }
func IPKey(addr string) string     { return "ip:" + addr }
func ContactKey(c string) string   { return "contact:" + c }
func EmailKey(email string) string { return "email:" + email }
