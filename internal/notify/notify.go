// Package notify keeps the short-lived user notices (toasts) raised by the core.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/currency"
)

// Kind is the severity of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notice is one user-facing message.
type Notice struct {
	ID      uint64    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives user-facing messages.
type Notifier interface {
	Notify(kind Kind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind Kind, message string)

func (f NotifierFunc) Notify(kind Kind, message string) { f(kind, message) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Kind, string) {})

// DefaultCapacity is the number of notices a Feed keeps when none is given.
const DefaultCapacity = 50

// Feed is a bounded, in-memory notice history safe for concurrent use.
// When full, the oldest notice is dropped.
type Feed struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	nextID   uint64
	now      func() time.Time
}

// NewFeed creates a Feed holding at most capacity notices.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{capacity: capacity, now: time.Now}
}

// Notify appends a notice.
func (f *Feed) Notify(kind Kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.notices = append(f.notices, Notice{ID: f.nextID, Kind: kind, Message: message, At: f.now()})
	if over := len(f.notices) - f.capacity; over > 0 {
		f.notices = append([]Notice(nil), f.notices[over:]...)
	}
}

// Since returns the notices with an ID greater than after, oldest first.
func (f *Feed) Since(after uint64) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Notice{}
	for _, n := range f.notices {
		if n.ID > after {
			out = append(out, n)
		}
	}
	return out
}

// All returns every retained notice, oldest first.
func (f *Feed) All() []Notice {
	return f.Since(0)
}

// Clear drops every notice.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = nil
}

// BudgetAlert raises the notice for a triggered budget alert. It does
// nothing when the alert did not trigger.
func BudgetAlert(n Notifier, a budget.Alert, primaryCurrency string) {
	if !a.Triggered() {
		return
	}
	spent := currency.Format(a.Spent, primaryCurrency)
	limit := currency.Format(a.Limit, primaryCurrency)

	switch a.Level {
	case budget.LevelExceeded:
		n.Notify(KindError, fmt.Sprintf("Budget exceeded for %s: %s of %s spent this month.", a.Category.Name(), spent, limit))
	case budget.LevelWarning:
		pct := 0.0
		if a.Limit > 0 {
			pct = a.Spent / a.Limit * 100
		}
		n.Notify(KindWarning, fmt.Sprintf("Heads up: %s is at %.0f%% of its budget (%s of %s).", a.Category.Name(), pct, spent, limit))
	}
}
