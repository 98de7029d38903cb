package eventstream

import "errors"

// ErrNilMasteryEvent indicates a nil mastery event payload was provided to a publisher.
var ErrNilMasteryEvent = errors.New("nil mastery event")
