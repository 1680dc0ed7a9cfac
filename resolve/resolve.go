// Package resolve decides which stored object answers a request for an
// identifier. When the identifier itself is not found, a ruleset may rewrite
// it into the identifier of a default object, which is then looked up by path.
package resolve

import (
	"context"
	"fmt"

	"github.com/nicolagi/gridserve/storage"
	log "github.com/sirupsen/logrus"
)

// Mode says how identifiers are looked up in the store.
type Mode uint8

const (
	// ByID treats identifiers as object IDs.
	ByID Mode = iota

	// ByPath treats identifiers as hierarchical file names.
	ByPath
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ByID:
		return "id"
	case ByPath:
		return "path"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode parses "id" or "path". The empty string means ByID.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "id", "":
		return ByID, nil
	case "path":
		return ByPath, nil
	default:
		return 0, fmt.Errorf("unknown lookup mode %q", s)
	}
}

// Request is one identifier to resolve, and how.
type Request struct {
	Identifier string
	Mode       Mode
}

// Kind classifies outcomes.
type Kind uint8

const (
	NotFound Kind = iota
	Found
	FoundViaFallback
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Found:
		return "found"
	case FoundViaFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Outcome is the result of resolving a Request. Object is nil for NotFound;
// otherwise the caller must close it.
type Outcome struct {
	Kind   Kind
	Object *storage.Object

	// Identifier is the identifier of the object served, which for a
	// fallback is the rewritten one.
	Identifier string

	// Rule names the rule that produced Identifier, for fallbacks only.
	Rule string
}

type Option func(*options)

type options struct {
	ruleset  Ruleset
	fallback storage.Bucket
}

// WithRuleset sets the fallback rules. The default is NoRules.
func WithRuleset(value Ruleset) Option {
	return func(o *options) {
		o.ruleset = value
	}
}

// WithFallbackBucket sets where rewritten identifiers are looked up, e.g., a
// caching wrapper of the main bucket. The default is the main bucket.
func WithFallbackBucket(value storage.Bucket) Option {
	return func(o *options) {
		o.fallback = value
	}
}

// Resolver holds no per-request state and is safe for concurrent use as long
// as its buckets are.
type Resolver struct {
	bucket storage.Bucket
	opts   options
}

func New(bucket storage.Bucket, opts ...Option) *Resolver {
	r := &Resolver{bucket: bucket}
	r.opts.ruleset = NoRules
	for _, o := range opts {
		o(&r.opts)
	}
	if r.opts.fallback == nil {
		r.opts.fallback = bucket
	}
	return r
}

// Ruleset returns the rules in use.
func (r *Resolver) Ruleset() Ruleset {
	return r.opts.ruleset
}

// Resolve looks up the identifier and, if it's not found (or not a valid
// object ID), tries the first applicable fallback rule, looking up the
// rewritten identifier by path. Errors other than not found are returned
// as they are.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	logger := log.WithFields(log.Fields{
		"identifier": req.Identifier,
		"mode":       req.Mode,
	})
	o, err := lookup(ctx, r.bucket, req.Identifier, req.Mode)
	if err == nil {
		logger.Debug("Found")
		return Outcome{Kind: Found, Object: o, Identifier: req.Identifier}, nil
	}
	if !storage.IsNotFound(err) {
		return Outcome{}, err
	}
	candidate, rule, ok := r.opts.ruleset.Rewrite(req.Identifier)
	if !ok {
		logger.WithField("err", err).Debug("Not found")
		return Outcome{Kind: NotFound, Identifier: req.Identifier}, nil
	}
	logger = logger.WithFields(log.Fields{
		"rule":      rule,
		"candidate": candidate,
	})
	o, err = lookup(ctx, r.opts.fallback, candidate, ByPath)
	if err == nil {
		logger.Debug("Found via fallback")
		return Outcome{Kind: FoundViaFallback, Object: o, Identifier: candidate, Rule: rule}, nil
	}
	if !storage.IsNotFound(err) {
		return Outcome{}, err
	}
	logger.WithField("err", err).Debug("Fallback not found")
	return Outcome{Kind: NotFound, Identifier: req.Identifier}, nil
}

func lookup(ctx context.Context, bucket storage.Bucket, identifier string, mode Mode) (*storage.Object, error) {
	switch mode {
	case ByID:
		return bucket.GetByID(ctx, identifier)
	case ByPath:
		return bucket.OpenByPath(ctx, identifier)
	default:
		return nil, fmt.Errorf("unknown lookup mode %v", mode)
	}
}
