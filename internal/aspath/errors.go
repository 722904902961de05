package aspath

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedEndOfBuffer means a read ran past the declared data.
	ErrUnexpectedEndOfBuffer = errors.New("unexpected end of attribute buffer")
	// ErrMissingPathAttribute means the entry carried no attributes at all.
	ErrMissingPathAttribute = errors.New("invalid rib entry: missing path attributes")
	// ErrNoAsPathInAttributePath means no usable AS_SEQUENCE was found.
	ErrNoAsPathInAttributePath = errors.New("no AS_SEQUENCE in path attributes")
	// ErrMultipleAsPaths means more than one AS_SEQUENCE was found.
	ErrMultipleAsPaths = errors.New("multiple AS paths in path attributes")
	// ErrEmptyPath is returned when an operation needs at least one ASN.
	ErrEmptyPath = errors.New("empty AS path")
)

// UnknownAsValueError reports a segment type other than AS_SET or AS_SEQUENCE.
type UnknownAsValueError struct {
	Value byte
}

func (e *UnknownAsValueError) Error() string {
	return fmt.Sprintf("unknown AS path segment type %d, expected AS_SET (1) or AS_SEQUENCE (2)", e.Value)
}

// UnknownTypeCodeError reports an attribute type code outside the known
// registry. Only returned by a strict Decoder.
type UnknownTypeCodeError struct {
	Code byte
}

func (e *UnknownTypeCodeError) Error() string {
	return fmt.Sprintf("unknown path attribute type code %d", e.Code)
}

// Reason maps a decode error to a short stable label for metrics and logs.
func Reason(err error) string {
	var unknownAs *UnknownAsValueError
	var unknownType *UnknownTypeCodeError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnexpectedEndOfBuffer):
		return "truncated"
	case errors.Is(err, ErrMissingPathAttribute):
		return "missing_attribute"
	case errors.Is(err, ErrNoAsPathInAttributePath):
		return "no_as_path"
	case errors.Is(err, ErrMultipleAsPaths):
		return "multiple_as_paths"
	case errors.Is(err, ErrEmptyPath):
		return "empty_path"
	case errors.As(err, &unknownAs):
		return "unknown_segment"
	case errors.As(err, &unknownType):
		return "unknown_type_code"
	default:
		return "other"
	}
}
