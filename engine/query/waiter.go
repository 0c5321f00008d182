package query

import (
	"context"
	"strings"
	"time"

	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/bridge"
)

// State of a wait
type State int8

// revive:exported
const (
	Polling State = iota
	Satisfied
	TimedOut
	Failed
)

var stateMap = map[State]string{
	Polling:   "polling",
	Satisfied: "satisfied",
	TimedOut:  "timed_out",
	Failed:    "failed",
}

func (s State) String() string {
	if v, ok := stateMap[s]; ok {
		return v
	}
	return "unknown"
}

// Result of running a Waiter
type Result struct {
	State    State
	Element  driverk.ElementHandle
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Waiter blocks until its target element satisfies every predicate on the same
// attempt. The target is either a fixed handle or a query resolved afresh on
// every attempt. There is no way to cancel a wait from outside; callers that
// need to give up early run it on their own goroutine and discard the result.
type Waiter struct {
	handle     *driverk.ElementHandle
	query      *Query
	predicates []Condition
	interval   time.Duration
	timeout    time.Duration
	minTries   int
	stale      bool
	message    string
	observer   driverk.Observer
}

// WaitFor a fixed element. A stale handle fails the wait.
func WaitFor(h driverk.ElementHandle) Waiter {
	return Waiter{
		handle:   &h,
		interval: driverk.DefaultPollInterval,
		timeout:  driverk.DefaultPollTimeout,
	}
}

// WaitUntil the first element of q, starting from q's interval and timeout.
// The query does not poll on its own, the waiter's timeout governs.
func WaitUntil(q Query) Waiter {
	return Waiter{
		query:    &q,
		interval: q.interval,
		timeout:  q.timeout,
		minTries: q.minTries,
		observer: q.observer,
	}
}

// Until adds predicates that must all hold
func (w Waiter) Until(predicates ...Condition) Waiter {
	merged := make([]Condition, 0, len(w.predicates)+len(predicates))
	merged = append(merged, w.predicates...)
	w.predicates = append(merged, predicates...)
	return w
}

// Every sets the poll interval
func (w Waiter) Every(interval time.Duration) Waiter {
	w.interval = interval
	return w
}

// Timeout sets how long to wait
func (w Waiter) Timeout(timeout time.Duration) Waiter {
	w.timeout = timeout
	return w
}

// MinTries keeps polling past the timeout until n attempts were made
func (w Waiter) MinTries(n int) Waiter {
	w.minTries = n
	return w
}

// Stale waits for the target to leave the document instead of for predicates.
// A fixed handle is satisfied once it is stale, a query target once nothing
// matches or the element it found is stale.
func (w Waiter) Stale() Waiter {
	w.stale = true
	return w
}

// Message replaces the default timeout description
func (w Waiter) Message(message string) Waiter {
	w.message = message
	return w
}

// Observe reports every attempt to o
func (w Waiter) Observe(o driverk.Observer) Waiter {
	w.observer = o
	return w
}

// Configure takes interval and timeout from cfg
func (w Waiter) Configure(cfg *driverk.Config) Waiter {
	return w.Every(cfg.Interval()).Timeout(cfg.Timeout())
}

// Validate the waiter before any remote call is made
func (w Waiter) Validate() error {
	if w.handle == nil && w.query == nil {
		return &driverk.ValidationErr{Message: "wait has no target"}
	}
	if w.query != nil {
		if len(w.query.branches) == 0 {
			return &driverk.ValidationErr{Message: "wait target query has no branches"}
		}
	}
	if w.stale && len(w.predicates) > 0 {
		return &driverk.ValidationErr{Message: "a stale wait takes no predicates"}
	}
	if w.minTries < 0 {
		return &driverk.ValidationErr{Message: "min tries must not be negative"}
	}
	return validatePolling(w.interval, w.timeout)
}

func (w Waiter) target() string {
	switch {
	case w.query != nil:
		return w.query.String()
	case w.handle != nil:
		return w.handle.String()
	}
	return "nothing"
}

// Wait until satisfied and return the element that satisfied the predicates.
// Timing out returns a *driverk.TimeoutErr, any predicate error is returned
// as is.
func (w Waiter) Wait(b *bridge.Bridge) (driverk.ElementHandle, error) {
	res := w.Run(b)
	return res.Element, res.Err
}

// Run the wait and report how it ended
func (w Waiter) Run(b *bridge.Bridge) Result {
	if err := w.Validate(); err != nil {
		return Result{State: Failed, Err: err}
	}

	p := &poller{
		operation: OpWait,
		target:    w.target(),
		interval:  w.interval,
		timeout:   w.timeout,
		minTries:  w.minTries,
		observer:  w.observer,
	}
	attempt := w.attempt
	if w.stale {
		attempt = w.attemptStale
	}
	res, err := p.poll(b, attempt)

	result := Result{Attempts: res.attempts, Elapsed: res.elapsed}
	switch {
	case err != nil:
		result.State = Failed
		result.Err = err
	case res.last.done:
		result.State = Satisfied
		if len(res.last.handles) > 0 {
			result.Element = res.last.handles[0]
		}
	default:
		result.State = TimedOut
		result.Err = w.timedOut(res.last.unmet)
	}
	return result
}

func (w Waiter) attempt(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
	var h driverk.ElementHandle
	if w.query != nil {
		found, ok, err := w.query.first(ctx, c)
		if err != nil {
			// fatal, or a stale scope that never comes back
			return outcome{}, err
		}
		if !ok {
			return outcome{unmet: []string{"no element matched " + w.target()}}, nil
		}
		h = found
	} else {
		h = *w.handle
	}

	unmet := make([]string, 0)
	for _, pred := range w.predicates {
		ok, err := pred.Check(ctx, c, h)
		if err != nil {
			if w.query != nil && driverk.IsStale(err) {
				return outcome{handles: []driverk.ElementHandle{h}, unmet: []string{"stale " + h.String()}}, nil
			}
			return outcome{handles: []driverk.ElementHandle{h}}, err
		}
		if !ok {
			unmet = append(unmet, pred.String())
		}
	}
	return outcome{done: len(unmet) == 0, handles: []driverk.ElementHandle{h}, unmet: unmet}, nil
}

// attemptStale is done once the target is gone. Liveness of a found element is
// checked with a displayed lookup, only its stale error matters.
func (w Waiter) attemptStale(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
	var h driverk.ElementHandle
	if w.query != nil {
		found, ok, err := w.query.first(ctx, c)
		if err != nil {
			if driverk.IsStale(err) {
				return outcome{done: true}, nil
			}
			return outcome{}, err
		}
		if !ok {
			return outcome{done: true}, nil
		}
		h = found
	} else {
		h = *w.handle
	}

	if _, err := c.IsDisplayed(ctx, h); err != nil {
		if driverk.IsStale(err) {
			return outcome{done: true, handles: []driverk.ElementHandle{h}}, nil
		}
		return outcome{handles: []driverk.ElementHandle{h}}, err
	}
	return outcome{handles: []driverk.ElementHandle{h}, unmet: []string{"stale"}}, nil
}

func (w Waiter) timedOut(unmet []string) error {
	if w.message != "" {
		return &driverk.TimeoutErr{Message: w.message}
	}
	msg := "after " + w.timeout.String() + " waiting for " + w.target()
	if len(unmet) > 0 {
		msg += ", unmet: " + strings.Join(unmet, ", ")
	}
	return &driverk.TimeoutErr{Message: msg}
}
