package transformer

import "errors"

var (
	// ErrNotFound is returned when no transformer has the requested id.
	ErrNotFound = errors.New("transformer not found")
	// ErrDuplicateID is returned when two transformers share an id.
	ErrDuplicateID = errors.New("duplicate transformer id")
	// ErrUnknownSetting is returned for a setting id the transformer does not declare.
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrInvalidSetting is returned for a setting value of the wrong type or choice.
	ErrInvalidSetting = errors.New("invalid setting value")
)
