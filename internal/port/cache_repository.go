package port

import "context"

type IdempotencyCache interface {
	// SetIdempotency claims key, returns false if it is already claimed.
	// The token identifies this claim for ReleaseIdempotency.
	SetIdempotency(ctx context.Context, key string) (token string, ok bool, err error)

	// ReleaseIdempotency drops the claim if it is still held by token
	ReleaseIdempotency(ctx context.Context, key, token string) error
}
