package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/bridge"
)

// revive:exported
const (
	OpFirst       = "first"
	OpAll         = "all"
	OpAllRequired = "all_required"
	OpWait        = "wait"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
)

// outcome of one attempt
type outcome struct {
	done    bool
	handles []driverk.ElementHandle
	unmet   []string
}

type attemptFunc func(ctx context.Context, c driverk.ProtocolClient) (outcome, error)

type poller struct {
	operation string
	target    string
	interval  time.Duration
	timeout   time.Duration
	minTries  int
	once      bool
	observer  driverk.Observer
}

type pollResult struct {
	last     outcome
	attempts int
	elapsed  time.Duration
}

// poll runs attempt once per bridge round until it reports done, returns an
// error or the timeout elapses. A poller with minTries keeps going past the
// timeout until that many attempts were made, a poller with once makes a
// single attempt. The wait between attempts happens here on the calling
// goroutine, never on the bridge.
func (p *poller) poll(b *bridge.Bridge, attempt attemptFunc) (pollResult, error) {
	opID := uuid.NewString()
	start := time.Now()
	deadline := start.Add(p.timeout)
	logger := log.With().Str("op_id", opID).Str("operation", p.operation).Str("target", p.target).Logger()

	var res pollResult
	for {
		res.attempts++
		began := time.Now()
		out, err := bridge.Run(b, func(ctx context.Context, c driverk.ProtocolClient) (outcome, error) {
			return attempt(ctx, c)
		})
		res.last = out
		res.elapsed = time.Since(start)

		record := &driverk.Attempt{
			OperationID: opID,
			Operation:   p.operation,
			Target:      p.target,
			Number:      res.attempts,
			Started:     began,
			Elapsed:     res.elapsed,
			Matches:     len(out.handles),
			Unmet:       out.unmet,
		}
		if err != nil {
			record.Err = err.Error()
		}
		if p.observer != nil {
			p.observer.Record(record)
		}
		logger.Debug().Int("attempt", res.attempts).Int("matches", len(out.handles)).Strs("unmet", out.unmet).Err(err).Msg("poll attempt")

		if err != nil || out.done || p.once {
			return res, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if res.attempts >= p.minTries {
				return res, nil
			}
			remaining = p.interval
		}
		if remaining > p.interval {
			remaining = p.interval
		}
		time.Sleep(remaining)
	}
}
