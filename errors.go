package vcache

import "errors"

var (
	ErrClosed      = errors.New("vcache: store closed")
	ErrUnsupported = errors.New("vcache: operation not supported by backend")
)
