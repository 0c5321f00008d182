// Package query resolves elements by polling a session until competing
// selector branches produce a match, and waits for elements to reach a state.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/bridge"
)

// Query is an ordered set of branches where the earliest matching branch wins.
// Builder methods return copies so a Query can be shared and reused.
type Query struct {
	branches []Branch
	interval time.Duration
	timeout  time.Duration
	minTries int
	noWait   bool
	observer driverk.Observer
}

// New query over branches with the default interval and timeout
func New(branches ...Branch) Query {
	return Query{
		branches: append([]Branch(nil), branches...),
		interval: driverk.DefaultPollInterval,
		timeout:  driverk.DefaultPollTimeout,
	}
}

// Or adds branches with lower priority than the existing ones
func (q Query) Or(branches ...Branch) Query {
	merged := make([]Branch, 0, len(q.branches)+len(branches))
	merged = append(merged, q.branches...)
	q.branches = append(merged, branches...)
	return q
}

// Every sets the poll interval
func (q Query) Every(interval time.Duration) Query {
	q.interval = interval
	return q
}

// Timeout sets how long to poll before giving up
func (q Query) Timeout(timeout time.Duration) Query {
	q.timeout = timeout
	return q
}

// MinTries keeps polling past the timeout until n attempts were made
func (q Query) MinTries(n int) Query {
	q.minTries = n
	return q
}

// NoWait makes every operation a single attempt, interval and timeout are ignored
func (q Query) NoWait() Query {
	q.noWait = true
	return q
}

// Observe reports every attempt to o
func (q Query) Observe(o driverk.Observer) Query {
	q.observer = o
	return q
}

// Configure takes interval and timeout from cfg
func (q Query) Configure(cfg *driverk.Config) Query {
	return q.Every(cfg.Interval()).Timeout(cfg.Timeout())
}

// Branches of the query in priority order
func (q Query) Branches() []Branch {
	return append([]Branch(nil), q.branches...)
}

// Validate the query before any remote call is made
func (q Query) Validate() error {
	if len(q.branches) == 0 {
		return &driverk.ValidationErr{Message: "query has no branches"}
	}
	if q.minTries < 0 {
		return &driverk.ValidationErr{Message: "min tries must not be negative"}
	}
	if q.noWait {
		return nil
	}
	return validatePolling(q.interval, q.timeout)
}

func (q Query) String() string {
	parts := make([]string, len(q.branches))
	for i, b := range q.branches {
		parts[i] = b.String()
	}
	return strings.Join(parts, " | ")
}

// First returns the first element of the first branch with a match. Branches
// are tried in order on every attempt and later branches are not looked up once
// one matched. Fails with *driverk.NoSuchElementErr once the timeout elapsed.
func (q Query) First(b *bridge.Bridge) (driverk.ElementHandle, error) {
	if err := q.Validate(); err != nil {
		return driverk.ElementHandle{}, err
	}

	res, err := q.poller(OpFirst).poll(b, func(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
		h, ok, err := q.first(ctx, c)
		if err != nil || !ok {
			return outcome{}, err
		}
		return outcome{done: true, handles: []driverk.ElementHandle{h}}, nil
	})
	if err != nil {
		return driverk.ElementHandle{}, err
	}
	if !res.last.done {
		return driverk.ElementHandle{}, q.notFound()
	}
	return res.last.handles[0], nil
}

// All returns the matches of every branch, in branch order without duplicates,
// from the first attempt that matched anything.
//
// All never fails because nothing matched: after the timeout it returns an empty
// non nil slice and a nil error, which lets callers treat the element as
// optional. Use AllRequired when an empty result is a failure.
func (q Query) All(b *bridge.Bridge) ([]driverk.ElementHandle, error) {
	return q.collect(b, OpAll)
}

// AllRequired is All but fails with *driverk.NoSuchElementErr when nothing
// matched before the timeout.
func (q Query) AllRequired(b *bridge.Bridge) ([]driverk.ElementHandle, error) {
	handles, err := q.collect(b, OpAllRequired)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, q.notFound()
	}
	return handles, nil
}

// Exists reports whether any branch matched before the timeout. Not matching is
// not an error.
func (q Query) Exists(b *bridge.Bridge) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}

	res, err := q.poller(OpExists).poll(b, func(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
		h, ok, err := q.first(ctx, c)
		if err != nil || !ok {
			return outcome{}, err
		}
		return outcome{done: true, handles: []driverk.ElementHandle{h}}, nil
	})
	if err != nil {
		return false, err
	}
	return res.last.done, nil
}

// NotExists reports whether an attempt found no branch matching before the
// timeout. Every branch is looked up on each attempt.
func (q Query) NotExists(b *bridge.Bridge) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}

	res, err := q.poller(OpNotExists).poll(b, func(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
		handles, err := q.all(ctx, c)
		if err != nil {
			return outcome{}, err
		}
		out := outcome{done: len(handles) == 0, handles: handles}
		if !out.done {
			out.unmet = []string{"still matching " + q.String()}
		}
		return out, nil
	})
	if err != nil {
		return false, err
	}
	return res.last.done, nil
}

func (q Query) collect(b *bridge.Bridge, operation string) ([]driverk.ElementHandle, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res, err := q.poller(operation).poll(b, func(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
		handles, err := q.all(ctx, c)
		if err != nil {
			return outcome{}, err
		}
		return outcome{done: len(handles) > 0, handles: handles}, nil
	})
	if err != nil {
		return nil, err
	}
	if !res.last.done {
		return []driverk.ElementHandle{}, nil
	}
	return res.last.handles, nil
}

// first is a single poll free attempt of First
func (q Query) first(ctx context.Context, c driverk.ProtocolClient) (driverk.ElementHandle, bool, error) {
	for _, branch := range q.branches {
		handles, err := branch.Resolve(ctx, c)
		if err != nil {
			if isBranchFailure(err) {
				log.Debug().Str("branch", branch.String()).Err(err).Msg("branch abandoned for this attempt")
				continue
			}
			return driverk.ElementHandle{}, false, err
		}
		if len(handles) > 0 {
			return handles[0], true, nil
		}
	}
	return driverk.ElementHandle{}, false, nil
}

// all is a single poll free attempt of All
func (q Query) all(ctx context.Context, c driverk.ProtocolClient) ([]driverk.ElementHandle, error) {
	seen := make(map[string]struct{})
	aggregate := make([]driverk.ElementHandle, 0)
	for _, branch := range q.branches {
		handles, err := branch.Resolve(ctx, c)
		if err != nil {
			if isBranchFailure(err) {
				log.Debug().Str("branch", branch.String()).Err(err).Msg("branch abandoned for this attempt")
				continue
			}
			return nil, err
		}
		for _, h := range handles {
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}
			aggregate = append(aggregate, h)
		}
	}
	return aggregate, nil
}

func (q Query) poller(operation string) *poller {
	return &poller{
		operation: operation,
		target:    q.String(),
		interval:  q.interval,
		timeout:   q.timeout,
		minTries:  q.minTries,
		once:      q.noWait,
		observer:  q.observer,
	}
}

func (q Query) notFound() error {
	if q.noWait {
		return &driverk.NoSuchElementErr{Message: "matching " + q.String() + " without waiting"}
	}
	return &driverk.NoSuchElementErr{Message: "matching " + q.String() + " after " + q.timeout.String()}
}

func isBranchFailure(err error) bool {
	var fe *filterErr
	return errors.As(err, &fe)
}

func validatePolling(interval, timeout time.Duration) error {
	if interval <= 0 {
		return &driverk.ValidationErr{Message: "poll interval must be positive, got " + interval.String()}
	}
	if timeout < interval {
		return &driverk.ValidationErr{Message: "poll timeout " + timeout.String() + " is less than poll interval " + interval.String()}
	}
	return nil
}
