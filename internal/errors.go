package internal

import (
	"errors"
)

var (
	ENOTSUP         = errors.New("not supported")
	ErrFuncTimeout  = errors.New("function timeout")
	ErrSkipped      = errors.New("skipped")
	ErrInvalidSize  = errors.New("invalid size")
	ErrInvalidTime  = errors.New("invalid duration")
	ErrInvalidConf  = errors.New("invalid configuration")
	ErrDigestBroken = errors.New("digest mismatch")
)
