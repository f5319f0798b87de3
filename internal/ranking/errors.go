package ranking

import "fmt"

// MalformedRecordError is returned by Build when a record cannot become an Entry
type MalformedRecordError struct {
	// Index is the position of the offending record in the input
	Index int
	// Field is the name of the missing or invalid field
	Field string
	// Reason describes what is wrong with the field
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at index %d: field %q %s", e.Index, e.Field, e.Reason)
}

// DataAccessError is returned when a ranking source is unreachable or fails
type DataAccessError struct {
	// Source is the name of the ranking source that failed
	Source string
	Err    error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access failed for source %s: %v", e.Source, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// NewDataAccessError wraps err as a DataAccessError for source
func NewDataAccessError(source string, err error) error {
	return &DataAccessError{Source: source, Err: err}
}
