package value

import "errors"

// ErrUnexpected marks failures that indicate a caller bug rather than
// bad input data — casting a function/channel into a Variable,
// stringifying something JSON can't encode. Matches spec.md's
// UnexpectedError classification.
var ErrUnexpected = errors.New("unexpected value error")
