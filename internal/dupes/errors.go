package dupes

import "errors"

// ErrInvalidDecision is returned for malformed decisions: unknown actions,
// bad hashes, too few or too many files.
var ErrInvalidDecision = errors.New("invalid decision")
