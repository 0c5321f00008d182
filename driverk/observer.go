package driverk

import "time"

// Attempt is the record of a single poll attempt of a query or wait
type Attempt struct {
	OperationID string        `msgpack:"op_id"`
	Operation   string        `msgpack:"op"`     // first, all, all_required, wait
	Target      string        `msgpack:"target"` // query or handle description
	Number      int           `msgpack:"n"`
	Started     time.Time     `msgpack:"started"`
	Elapsed     time.Duration `msgpack:"elapsed"`
	Matches     int           `msgpack:"matches"`
	Unmet       []string      `msgpack:"unmet"`
	Err         string        `msgpack:"err"`
}

// Observer receives every poll attempt, called on the polling goroutine so
// implementations must not block for long.
type Observer interface {
	Record(attempt *Attempt)
}

// ObserverFunc adapts a func to an Observer
type ObserverFunc func(attempt *Attempt)

// Record calls f
func (f ObserverFunc) Record(attempt *Attempt) {
	f(attempt)
}

// Observers fans out to each non nil observer in order
type Observers []Observer

// Record on all observers
func (o Observers) Record(attempt *Attempt) {
	for _, obs := range o {
		if obs != nil {
			obs.Record(attempt)
		}
	}
}
