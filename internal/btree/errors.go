package btree

import "errors"

var (
	// ErrDuplicateKey is returned by Insert when the key already exists.
	// The tree enforces uniqueness; callers needing multi-value indexes
	// should encode a composite key.
	ErrDuplicateKey = errors.New("btree: duplicate key")
)
