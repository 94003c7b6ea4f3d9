package lock

import "errors"

// ErrLockTimeout is returned when a lock cannot be acquired in time,
// usually because another handler is still saving the workbook.
var ErrLockTimeout = errors.New("lock acquisition timeout")
