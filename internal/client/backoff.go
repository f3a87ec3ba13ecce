package client

import "time"

const (
	backoffBase = time.Second
	backoffMax  = 16 * time.Second
)

// Backoff doubles its delay on every consecutive failure up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	next time.Duration
}

func NewBackoff() *Backoff {
	return &Backoff{Base: backoffBase, Max: backoffMax}
}

// Next returns the delay before the coming attempt and doubles the one after.
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Base
	}
	d := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	return d
}

// Reset goes back to Base after a successful open.
func (b *Backoff) Reset() {
	b.next = b.Base
}
