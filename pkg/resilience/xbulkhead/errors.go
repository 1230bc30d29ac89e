package xbulkhead

import "errors"

// ErrInvalidMaxParallelization is returned by NewStrategy when
// maxParallelization is less than 1.
var ErrInvalidMaxParallelization = errors.New("xbulkhead: maxParallelization must be >= 1")

// ErrInvalidMaxQueuing is returned by NewStrategy when maxQueuing is
// negative.
var ErrInvalidMaxQueuing = errors.New("xbulkhead: maxQueuing must be >= 0")
