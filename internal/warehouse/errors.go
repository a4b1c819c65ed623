package warehouse

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when the forecast provider cannot be reached
	// or answers with an error. Fatal for the run.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedSourceData is returned when fetched readings cannot be normalized.
	ErrMalformedSourceData = errors.New("malformed source data")

	// ErrInvalidKey is returned when a candidate row has a null or unparseable
	// natural key component. The whole batch is rejected.
	ErrInvalidKey = errors.New("invalid key")

	// ErrDuplicateKey is returned when a key occurs more than once in one merge
	// input. It matches ErrInvalidKey with errors.Is.
	ErrDuplicateKey = fmt.Errorf("%w: duplicate key in batch", ErrInvalidKey)

	// ErrPersistenceUnavailable is returned when the store cannot apply a batch.
	// Nothing of the batch is visible afterwards.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrRunInProgress is returned when another pipeline run holds the run lock.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already committed or rolled back")
)
