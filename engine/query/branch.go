package query

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/driverk/driverk"
)

// Branch is one selector, the filters every match must pass and an optional
// element to search beneath. Builder methods return copies.
type Branch struct {
	sel     driverk.Selector
	filters []Condition
	scope   *driverk.ElementHandle
}

// Find starts a branch for sel
func Find(sel driverk.Selector, filters ...Condition) Branch {
	return Branch{sel: sel, filters: append([]Condition(nil), filters...)}
}

// Where adds filters after the existing ones
func (b Branch) Where(filters ...Condition) Branch {
	merged := make([]Condition, 0, len(b.filters)+len(filters))
	merged = append(merged, b.filters...)
	b.filters = append(merged, filters...)
	return b
}

// Within limits the lookup to descendants of scope
func (b Branch) Within(scope driverk.ElementHandle) Branch {
	b.scope = &scope
	return b
}

// Selector of this branch
func (b Branch) Selector() driverk.Selector {
	return b.sel
}

func (b Branch) String() string {
	var sb strings.Builder
	sb.WriteString(b.sel.String())
	if len(b.filters) > 0 {
		sb.WriteString(" [")
		sb.WriteString(describe(b.filters))
		sb.WriteString("]")
	}
	if b.scope != nil {
		sb.WriteString(" within ")
		sb.WriteString(b.scope.String())
	}
	return sb.String()
}

// filterErr abandons the branch for the current attempt without failing the query
type filterErr struct {
	branch string
	filter string
	err    error
}

func (e *filterErr) Error() string {
	if e.filter == "" {
		return "lookup for " + e.branch + " failed: " + e.err.Error()
	}
	return "filter " + e.filter + " of " + e.branch + " failed: " + e.err.Error()
}

func (e *filterErr) Unwrap() error {
	return e.err
}

// scopeErr is a stale scope, the branch can never match again
type scopeErr struct {
	scope string
	err   error
}

func (e *scopeErr) Error() string {
	return "scope " + e.scope + " is stale: " + e.err.Error()
}

func (e *scopeErr) Unwrap() error {
	return e.err
}

func isScopeErr(err error) bool {
	var se *scopeErr
	return errors.As(err, &se)
}

// Resolve performs a single lookup and returns the handles that pass every
// filter, in the order the remote end returned them. Fatal errors and a stale
// scope are returned as is, any other failure is returned wrapped and means the
// branch has no match this attempt.
func (b Branch) Resolve(ctx context.Context, c driverk.ProtocolClient) ([]driverk.ElementHandle, error) {
	found, err := c.FindElements(ctx, b.sel, b.scope)
	if err != nil {
		if driverk.IsFatal(err) {
			return nil, err
		}
		if b.scope != nil && driverk.IsStale(err) {
			return nil, &scopeErr{scope: b.scope.String(), err: err}
		}
		return nil, &filterErr{branch: b.String(), err: err}
	}

	matched := make([]driverk.ElementHandle, 0, len(found))
	for _, h := range found {
		ok, err := b.accept(ctx, c, h)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

func (b Branch) accept(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
	for _, f := range b.filters {
		ok, err := f.Check(ctx, c, h)
		if err != nil {
			if driverk.IsFatal(err) {
				return false, err
			}
			log.Debug().Str("branch", b.sel.String()).Str("filter", f.String()).Str("element", h.ID).Err(err).Msg("filter failed")
			return false, &filterErr{branch: b.String(), filter: f.String(), err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
