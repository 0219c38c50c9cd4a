package rollout

import "errors"

// Error implements errors unique to a rollout buffer. Every protocol
// violation of the buffer's state machine is reported as an *Error.
type Error struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying sentinel error
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrBufferFull is reported when adding to a buffer which already
	// holds a full rollout
	ErrBufferFull = errors.New("buffer full")

	// ErrNotFilled is reported when finalizing a buffer which does not
	// yet hold a full rollout
	ErrNotFilled = errors.New("buffer not filled")

	// ErrNotFinalized is reported when reading derived data from a
	// buffer which has not been finalized
	ErrNotFinalized = errors.New("buffer not finalized")

	// ErrFinalized is reported when adding to or finalizing a buffer
	// which has already been finalized and not reset
	ErrFinalized = errors.New("buffer already finalized")

	// ErrShape is reported for arguments of the wrong shape
	ErrShape = errors.New("shape mismatch")
)

// IsBufferFull returns whether or not an error reports that a buffer
// is full
func IsBufferFull(err error) bool {
	return errors.Is(err, ErrBufferFull)
}

// IsNotFilled returns whether or not an error reports that a buffer
// was finalized before it was filled
func IsNotFilled(err error) bool {
	return errors.Is(err, ErrNotFilled)
}

// IsNotFinalized returns whether or not an error reports that a buffer
// was read before it was finalized
func IsNotFinalized(err error) bool {
	return errors.Is(err, ErrNotFinalized)
}

// IsFinalized returns whether or not an error reports that a buffer
// was modified after it was finalized
func IsFinalized(err error) bool {
	return errors.Is(err, ErrFinalized)
}

func newError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
