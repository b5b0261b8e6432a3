package raw

import (
	"encoding/binary"
	"fmt"
)

// fieldReader reads big-endian header fields from one datagram, refusing any read
// that would run past the end of the buffer.
type fieldReader struct {
	b      []byte
	family Family
}

func (r fieldReader) truncated(need int) error {
	return &DecodeError{Reason: ErrTruncated, Family: r.family, Type: r.b[0], Code: r.b[1], Need: need, Have: len(r.b)}
}

func (r fieldReader) require(n int) error {
	if len(r.b) < n {
		return r.truncated(n)
	}
	return nil
}

func (r fieldReader) u8(off int) (uint8, error) {
	if err := r.require(off + 1); err != nil {
		return 0, err
	}
	return r.b[off], nil
}

func (r fieldReader) u16(off int) (uint16, error) {
	if err := r.require(off + 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.b[off : off+2]), nil
}

func (r fieldReader) u32(off int) (uint32, error) {
	if err := r.require(off + 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.b[off : off+4]), nil
}

// tail copies the bytes from off onward; the decoded message never aliases the read buffer.
func (r fieldReader) tail(off int) ([]byte, error) {
	if err := r.require(off); err != nil {
		return nil, err
	}
	out := make([]byte, len(r.b)-off)
	copy(out, r.b[off:])
	return out, nil
}

func (r fieldReader) idSeq() (uint16, uint16, error) {
	id, err := r.u16(4)
	if err != nil {
		return 0, 0, err
	}
	seq, err := r.u16(6)
	if err != nil {
		return 0, 0, err
	}
	return id, seq, nil
}

func (r fieldReader) unknownCode() error {
	return &DecodeError{Reason: ErrUnknownCode, Family: r.family, Type: r.b[0], Code: r.b[1]}
}

func newFieldReader(family Family, b []byte) (fieldReader, error) {
	// type, code and checksum are common to every message
	if len(b) < 4 {
		de := &DecodeError{Reason: ErrTruncated, Family: family, Need: 4, Have: len(b)}
		if len(b) > 0 {
			de.Type = b[0]
		}
		if len(b) > 1 {
			de.Code = b[1]
		}
		return fieldReader{}, de
	}
	return fieldReader{b: b, family: family}, nil
}

// DecodeV4 decodes an ICMPv4 message with its IP header already stripped,
// which is what datagram ICMP sockets deliver.
func DecodeV4(b []byte) (*MessageV4, error) {
	r, err := newFieldReader(FamilyV4, b)
	if err != nil {
		return nil, err
	}
	typ, code := b[0], b[1]
	checksum, err := r.u16(2)
	if err != nil {
		return nil, err
	}

	// payload starts right after whatever the kind destructures
	payloadOffset := headerSizeICMP
	var kind KindV4

	switch typ {
	case 0, 8:
		id, seq, err := r.idSeq()
		if err != nil {
			return nil, err
		}
		if typ == 0 {
			kind = EchoReplyV4{Identifier: id, Sequence: seq}
		} else {
			kind = EchoRequestV4{Identifier: id, Sequence: seq}
		}
	case 3:
		c, ok := parseDestinationUnreachableCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		length, err := r.u8(5)
		if err != nil {
			return nil, err
		}
		mtu, err := r.u16(6)
		if err != nil {
			return nil, err
		}
		kind = DestinationUnreachableV4{Code: c, Length: length, NextHopMTU: mtu}
	case 4:
		payloadOffset = 4
		kind = SourceQuenchV4{}
	case 5:
		c, ok := parseRedirectCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		addr, err := r.u32(4)
		if err != nil {
			return nil, err
		}
		kind = RedirectV4{Code: c, Address: addr}
	case 9:
		payloadOffset = 4
		kind = RouterAdvertisementV4{}
	case 10:
		payloadOffset = 4
		kind = RouterSolicitationV4{}
	case 11:
		c, ok := parseTimeExceededCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		payloadOffset = 4
		kind = TimeExceededV4{Code: c}
	case 12:
		c, ok := parseBadIPHeaderCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		payloadOffset = 4
		kind = BadIPHeaderV4{Code: c}
	case 13, 14:
		if err := r.require(headerSizeICMPTimestamp); err != nil {
			return nil, err
		}
		id, seq, err := r.idSeq()
		if err != nil {
			return nil, err
		}
		var ts [3]uint32
		for i := range ts {
			if ts[i], err = r.u32(8 + 4*i); err != nil {
				return nil, err
			}
		}
		if typ == 13 {
			kind = TimestampV4{Identifier: id, Sequence: seq, Originate: ts[0], Receive: ts[1], Transmit: ts[2]}
		} else {
			kind = TimestampReplyV4{Identifier: id, Sequence: seq, Originate: ts[0], Receive: ts[1], Transmit: ts[2]}
		}
	default:
		return nil, &DecodeError{Reason: ErrUnknownType, Family: FamilyV4, Type: typ, Code: code}
	}

	// every supported type carries at least the 8 byte header on the wire
	if err := r.require(headerSizeICMP); err != nil {
		return nil, err
	}
	payload, err := r.tail(payloadOffset)
	if err != nil {
		return nil, err
	}

	return &MessageV4{Kind: kind, Checksum: checksum, Payload: payload}, nil
}

// DecodeV6 decodes an ICMPv6 message.
func DecodeV6(b []byte) (*MessageV6, error) {
	r, err := newFieldReader(FamilyV6, b)
	if err != nil {
		return nil, err
	}
	typ, code := b[0], b[1]
	checksum, err := r.u16(2)
	if err != nil {
		return nil, err
	}

	var kind KindV6
	switch typ {
	case 1:
		c, ok := parseDestinationUnreachableV6Code(code)
		if !ok {
			return nil, r.unknownCode()
		}
		kind = DestinationUnreachableV6{Code: c}
	case 2:
		mtu, err := r.u32(4)
		if err != nil {
			return nil, err
		}
		kind = PacketTooBigV6{MTU: mtu}
	case 3:
		c, ok := parseTimeExceededCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		kind = TimeExceededV6{Code: c}
	case 4:
		c, ok := parseParameterProblemCode(code)
		if !ok {
			return nil, r.unknownCode()
		}
		ptr, err := r.u32(4)
		if err != nil {
			return nil, err
		}
		kind = ParameterProblemV6{Code: c, Pointer: ptr}
	case 128, 129:
		id, seq, err := r.idSeq()
		if err != nil {
			return nil, err
		}
		if typ == 128 {
			kind = EchoRequestV6{Identifier: id, Sequence: seq}
		} else {
			kind = EchoReplyV6{Identifier: id, Sequence: seq}
		}
	default:
		return nil, &DecodeError{Reason: ErrUnknownType, Family: FamilyV6, Type: typ, Code: code}
	}

	body, err := r.tail(headerSizeICMP)
	if err != nil {
		return nil, err
	}
	return &MessageV6{Kind: kind, Checksum: checksum, Body: body}, nil
}

// Decode dispatches on the family of the socket the datagram was read from.
func Decode(family Family, b []byte) (Message, error) {
	switch family {
	case FamilyV4:
		m, err := DecodeV4(b)
		if err != nil {
			return nil, err
		}
		return m, nil
	case FamilyV6:
		m, err := DecodeV6(b)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported address family: %d", int(family))
}

// EchoData returns the data of an echo reply, and false for any other message.
func EchoData(msg Message) ([]byte, bool) {
	switch m := msg.(type) {
	case *MessageV4:
		if _, ok := m.Kind.(EchoReplyV4); ok {
			return m.Payload, true
		}
	case *MessageV6:
		if _, ok := m.Kind.(EchoReplyV6); ok {
			return m.Body, true
		}
	}
	return nil, false
}
