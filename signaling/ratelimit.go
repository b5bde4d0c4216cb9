package signaling

import (
	"context"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// IngressLimiter bounds the rate of inbound frames a single connection may
// submit through OnBinary (spec §5: "ingress is serialized", but nothing
// there bounds how fast a misbehaving or compromised relay can feed
// frames into that serialization point). One instance guards one
// Signaling; the key passed to Allow only needs to be stable for the
// lifetime of the connection.
type IngressLimiter struct {
	store limiter.Store
	key   string
}

// NewIngressLimiter builds a limiter admitting up to ratePerSecond frames
// per second, keyed by a fixed connection identifier.
func NewIngressLimiter(ratePerSecond uint64, key string) (*IngressLimiter, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   ratePerSecond,
		Interval: time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &IngressLimiter{store: store, key: key}, nil
}

// Allow reports whether the current frame may proceed, consuming one
// token if so.
func (l *IngressLimiter) Allow() (bool, error) {
	_, _, _, ok, err := l.store.Take(context.Background(), l.key)
	return ok, err
}

// Close releases the limiter's background bookkeeping.
func (l *IngressLimiter) Close() error {
	return l.store.Close(context.Background())
}
