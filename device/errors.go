package device

import "errors"

var (
	// ErrBlockNotFound is returned for an unknown block name.
	ErrBlockNotFound = errors.New("device: block not found")
	// ErrDuplicateBlock is returned when a block name is added twice.
	ErrDuplicateBlock = errors.New("device: duplicate block")
	// ErrInvalidBlock is returned for an inconsistent block definition.
	ErrInvalidBlock = errors.New("device: invalid block")
	// ErrNotWritable is returned by WriteBlock for a block without a write conversation.
	ErrNotWritable = errors.New("device: block is not writable")
)
