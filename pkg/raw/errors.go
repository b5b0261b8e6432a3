package raw

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown icmp type")
	ErrUnknownCode = errors.New("unknown icmp code")
	ErrTruncated   = errors.New("truncated icmp message")
	ErrBadChecksum = errors.New("bad icmp checksum")
)

// DecodeError describes why a buffer could not be decoded. It matches one of
// ErrUnknownType, ErrUnknownCode, ErrTruncated or ErrBadChecksum through errors.Is.
type DecodeError struct {
	Reason error
	Family Family
	Type   uint8
	Code   uint8

	// set for ErrTruncated
	Need int
	Have int
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ErrTruncated:
		return fmt.Sprintf("%s %v: type %d needs %d bytes, got %d", e.Family, e.Reason, e.Type, e.Need, e.Have)
	case ErrUnknownType:
		return fmt.Sprintf("%s %v: %d", e.Family, e.Reason, e.Type)
	default:
		return fmt.Sprintf("%s %v: type %d code %d", e.Family, e.Reason, e.Type, e.Code)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// ReasonLabel is a short stable name of the failure, suitable for metric labels.
func (e *DecodeError) ReasonLabel() string {
	switch e.Reason {
	case ErrUnknownType:
		return "unknown_type"
	case ErrUnknownCode:
		return "unknown_code"
	case ErrTruncated:
		return "truncated"
	case ErrBadChecksum:
		return "bad_checksum"
	}
	return "other"
}
