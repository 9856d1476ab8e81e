// Package idempotency replays the stored response of a repeated POST.
package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/concert-booking/internal/adapters/redis"
)

// MinKeyLength is the shortest Idempotency-Key accepted.
const MinKeyLength = 16

const lockTTL = 30 * time.Second

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status   int
	Location string
	Result   []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	r, err := i.store.Get(ctx, key)
	if err != nil || r == nil {
		return nil, err
	}
	return &Response{Status: r.Status, Location: r.Location, Result: r.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:   resp.Status,
		Location: resp.Location,
		Result:   resp.Result,
	}, i.ttl)
}

// Begin claims key for one in-flight request. The returned release must be called
// once the response is stored or abandoned.
func (i *Idempotency) Begin(ctx context.Context, key string) (bool, func(), error) {
	ok, err := i.store.Lock(ctx, key, lockTTL)
	if err != nil || !ok {
		return false, func() {}, err
	}
	return true, func() { _ = i.store.Unlock(context.WithoutCancel(ctx), key) }, nil
}
