package common

import "github.com/oklog/ulid/v2"

// NewULID returns a 26-char, time-ordered id. ids minted in the same
// millisecond still sort in creation order.
func NewULID() string {
	return ulid.Make().String()
}
