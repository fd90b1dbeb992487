package gap

import "errors"

// ErrInvalidProjectRoot is returned when the project root is missing or not a directory.
var ErrInvalidProjectRoot = errors.New("invalid project root")
