package store

import (
	"os"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v4"
	"gitlab.com/driverk/driverk"
)

// Operation summarizes every recorded attempt of a single query or wait
type Operation struct {
	ID        string        `msgpack:"id"`
	Operation string        `msgpack:"op"`
	Target    string        `msgpack:"target"`
	Started   time.Time     `msgpack:"started"`
	Elapsed   time.Duration `msgpack:"elapsed"` // since the operation started
	Attempts  int           `msgpack:"attempts"`
	LastErr   string        `msgpack:"last_err"`
}

// Journal persists poll attempts so flaky lookups can be inspected after the fact
type Journal struct {
	DB       *badger.DB
	filepath string
}

var _ driverk.Observer = (*Journal)(nil)

// NewJournal stored under filepath
func NewJournal(filepath string) *Journal {
	return &Journal{filepath: filepath}
}

// Init opens (or creates) the journal
func (j *Journal) Init() error {
	var err error

	if err = os.MkdirAll(j.filepath, 0700); err != nil {
		return err
	}

	opts := badger.DefaultOptions(j.filepath).WithLogger(&badgerLogger{})
	j.DB, err = badger.Open(opts)
	return errors.Wrap(err, "opening journal")
}

// Record the attempt, failures are logged since observers can not return errors
func (j *Journal) Record(attempt *driverk.Attempt) {
	if err := j.Add(attempt); err != nil {
		log.Error().Err(err).Str("operation", attempt.OperationID).Int("attempt", attempt.Number).Msg("failed to journal attempt")
	}
}

// Add the attempt and update its operation summary
func (j *Journal) Add(attempt *driverk.Attempt) error {
	if attempt.OperationID == "" {
		return errors.New("attempt has no operation id")
	}

	return j.DB.Update(func(txn *badger.Txn) error {
		bytez, err := EncodeAttempt(attempt)
		if err != nil {
			return err
		}
		// key = attempt:<op id>:<number>, value = msgpack'd attempt
		if err := txn.Set(AttemptKey(attempt.OperationID, attempt.Number), bytez); err != nil {
			return err
		}

		op := &Operation{
			ID:        attempt.OperationID,
			Operation: attempt.Operation,
			Target:    attempt.Target,
			Started:   attempt.Started,
		}
		item, err := txn.Get(OperationKey(attempt.OperationID))
		switch {
		case err == nil:
			if op, err = DecodeOperation(item); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if attempt.Number > op.Attempts {
			op.Attempts = attempt.Number
		}
		if attempt.Elapsed > op.Elapsed {
			op.Elapsed = attempt.Elapsed
		}
		op.LastErr = attempt.Err

		summary, err := msgpack.Marshal(op)
		if err != nil {
			return err
		}
		return txn.Set(OperationKey(attempt.OperationID), summary)
	})
}

// Operations recorded in the journal, oldest first
func (j *Journal) Operations() ([]*Operation, error) {
	ops := make([]*Operation, 0)
	err := j.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(OperationPredicate + ":")})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			op, err := DecodeOperation(it.Item())
			if err != nil {
				return errors.Wrapf(err, "decoding %s", it.Item().Key())
			}
			ops = append(ops, op)
		}
		return nil
	})
	sort.SliceStable(ops, func(i, k int) bool { return ops[i].Started.Before(ops[k].Started) })
	return ops, err
}

// Attempts of the operation in attempt order
func (j *Journal) Attempts(operationID string) ([]*driverk.Attempt, error) {
	attempts := make([]*driverk.Attempt, 0)
	err := j.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: AttemptPrefix(operationID)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			attempt, err := DecodeAttempt(it.Item())
			if err != nil {
				return err
			}
			attempts = append(attempts, attempt)
		}
		return nil
	})
	return attempts, err
}

// Close the journal
func (j *Journal) Close() error {
	if j.DB == nil {
		return nil
	}
	return j.DB.Close()
}

// badgerLogger sends badger's own logging through zerolog
type badgerLogger struct{}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	log.Error().Str("component", "badger").Msgf(f, v...)
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	log.Warn().Str("component", "badger").Msgf(f, v...)
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(f, v...)
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(f, v...)
}
