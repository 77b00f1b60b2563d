package scheduler

import "sync"

// Token is a cooperative stop signal. The scheduler checks it between
// companies and while waiting between batches, never mid-company.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Cancel requests a graceful stop. Safe to call more than once.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done is closed on Cancel.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}
