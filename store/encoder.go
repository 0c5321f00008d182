package store

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/vmihailenco/msgpack/v4"
	"gitlab.com/driverk/driverk"
)

// revive:exported
const (
	AttemptPredicate   = "attempt"
	OperationPredicate = "op"
)

// MakeKey of a predicate and id
func MakeKey(id []byte, predicate string) []byte {
	key := []byte(predicate)
	key = append(key, byte(':'))
	key = append(key, id...)
	return key
}

// AttemptKey orders attempts of an operation by number, attempt:<op id>:<number>
func AttemptKey(operationID string, number int) []byte {
	return MakeKey([]byte(fmt.Sprintf("%s:%08d", operationID, number)), AttemptPredicate)
}

// AttemptPrefix of every attempt of an operation
func AttemptPrefix(operationID string) []byte {
	return MakeKey([]byte(operationID+":"), AttemptPredicate)
}

// OperationKey op:<op id>
func OperationKey(operationID string) []byte {
	return MakeKey([]byte(operationID), OperationPredicate)
}

// EncodeAttempt into msgpack
func EncodeAttempt(attempt *driverk.Attempt) ([]byte, error) {
	return msgpack.Marshal(attempt)
}

// DecodeAttempt from a journal item
func DecodeAttempt(item *badger.Item) (*driverk.Attempt, error) {
	attempt := &driverk.Attempt{}
	err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, attempt)
	})
	return attempt, err
}

// DecodeOperation from a journal item
func DecodeOperation(item *badger.Item) (*Operation, error) {
	op := &Operation{}
	err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, op)
	})
	return op, err
}
