package engine

import (
	"errors"

	"github.com/cloudpack/packstore/pkg/codec"
)

var (
	// ErrNotFound: the requested fileset does not exist.
	ErrNotFound = errors.New("fileset not found")

	// ErrConflict: a concurrent writer got there first. Deterministic,
	// never retried; the caller decides whether to take the shadow path.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrIntegrity: stored bytes fail verification. Shared with the
	// block codec so errors.Is matches across the whole restore path.
	ErrIntegrity = codec.ErrIntegrity
)
