package raw

import (
	"encoding/binary"
	"time"
)

const timestampLen = 16

// the filler mimics what iputils ping puts after its own timestamp
const fillerFirst byte = 0x10
const fillerLast byte = 0x37

// TimestampPayloadSize is the echo data size the pinger sends: 16 timestamp bytes
// plus 40 filler bytes, the classic 56 byte ping payload.
const TimestampPayloadSize = timestampLen + int(fillerLast-fillerFirst) + 1

// BuildTimestampPayload encodes t as seconds since the epoch and the sub-second
// microseconds, both big-endian u64, followed by the filler pattern.
func BuildTimestampPayload(t time.Time) []byte {
	b := make([]byte, timestampLen, TimestampPayloadSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.Unix()))
	binary.BigEndian.PutUint64(b[8:16], uint64(t.Nanosecond()/1000))
	for c := fillerFirst; c <= fillerLast; c++ {
		b = append(b, c)
	}
	return b
}

// ParseTimestampPayload recovers the send time embedded by BuildTimestampPayload.
// Only the first 16 bytes are looked at.
func ParseTimestampPayload(b []byte) (time.Time, error) {
	if len(b) < timestampLen {
		return time.Time{}, &DecodeError{Reason: ErrTruncated, Need: timestampLen, Have: len(b)}
	}
	secs := int64(binary.BigEndian.Uint64(b[0:8]))
	micros := int64(binary.BigEndian.Uint64(b[8:16]))
	return time.Unix(secs, 0).Add(time.Duration(micros) * time.Microsecond), nil
}
