package dns

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Dedup wraps a Resolver so concurrent identical lookups share one query.
// Each caller still observes its own context: a caller whose context ends
// returns early while the shared query continues for the others. Callers
// sharing a query share the returned Records slice and must not modify it.
type Dedup struct {
	Resolver Resolver

	sg singleflight.Group
}

var _ Resolver = (*Dedup)(nil)

// NewDedup returns a deduplicating wrapper around r.
func NewDedup(r Resolver) *Dedup {
	return &Dedup{Resolver: r}
}

// LookupTXT implements Resolver.
func (d *Dedup) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	return do(ctx, &d.sg, "txt "+ensureFQDN(name), func(ctx context.Context) (Result[string], error) {
		return d.Resolver.LookupTXT(ctx, name)
	})
}

// LookupTLSA implements Resolver.
func (d *Dedup) LookupTLSA(ctx context.Context, name string) (Result[TLSA], error) {
	return do(ctx, &d.sg, "tlsa "+ensureFQDN(name), func(ctx context.Context) (Result[TLSA], error) {
		return d.Resolver.LookupTLSA(ctx, name)
	})
}

type sharedResult[T any] struct {
	res Result[T]
	err error
}

func do[T any](ctx context.Context, sg *singleflight.Group, key string, fn func(context.Context) (Result[T], error)) (Result[T], error) {
	ch := sg.DoChan(key, func() (any, error) {
		// Only the leader runs this. The query is detached from the leader's
		// cancellation but keeps its deadline.
		qctx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			qctx, cancel = context.WithDeadline(qctx, deadline)
			defer cancel()
		}
		res, err := fn(qctx)
		return sharedResult[T]{res, err}, nil
	})

	select {
	case <-ctx.Done():
		return Result[T]{}, contextError(ctx.Err())
	case r := <-ch:
		sr := r.Val.(sharedResult[T])
		return sr.res, sr.err
	}
}
