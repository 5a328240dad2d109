package guard

import "errors"

// ErrCheckFailed indicates the authorization check itself could not complete.
// The guard still resolves it into a landing redirect rather than a crash.
var ErrCheckFailed = errors.New("stage authorization check failed")
