package openaccess

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrNoDOI = errors.New("no valid DOI found in the input")

// Lookuper fetches raw records by DOI. *Client is the production implementation.
type Lookuper interface {
	Lookup(ctx context.Context, doi string) (*Record, error)
}

// Resolver turns free text into an open-access Result.
type Resolver struct {
	lookup  Lookuper
	logger  *zap.Logger
	group   singleflight.Group
	cache   *expirable.LRU[string, Result]
	timeout time.Duration
}

// DefaultLookupTimeout bounds a shared lookup once it is detached from
// its callers.
const DefaultLookupTimeout = 30 * time.Second

type Option func(*Resolver)

// WithCache keeps up to size successful results for ttl. Failures are
// never cached.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.cache = expirable.NewLRU[string, Result](size, nil, ttl)
		}
	}
}

// WithLookupTimeout bounds each upstream lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewResolver(lookup Lookuper, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  lookup,
		logger:  logger,
		timeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve extracts the DOI from input and asks Unpaywall about it.
// Concurrent calls for the same DOI share one upstream request.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Result, error) {
	doi, ok := ExtractDOI(input)
	if !ok {
		return nil, ErrNoDOI
	}

	// DOIs are case-insensitive.
	key := strings.ToLower(doi)
	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok {
			return &res, nil
		}
	}

	// The shared lookup must outlive any single caller; each caller
	// stops waiting when its own ctx ends.
	ch := r.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		rec, err := r.lookup.Lookup(lookupCtx, doi)
		if err != nil {
			return nil, err
		}
		res := Normalize(rec)
		if r.cache != nil {
			r.cache.Add(key, res)
		}
		return &res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			r.logger.Warn("Open-access lookup failed", zap.String("doi", doi), zap.Error(out.Err))
			return nil, out.Err
		}
		res := *out.Val.(*Result)
		r.logger.Debug("Open-access lookup done",
			zap.String("doi", doi),
			zap.Bool("is_oa", res.IsOA),
			zap.Bool("shared", out.Shared))
		return &res, nil
	}
}
