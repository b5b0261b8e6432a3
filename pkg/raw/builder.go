package raw

import (
	"encoding/binary"
	"fmt"
)

// Checksum computes the internet checksum of b with the checksum field (bytes 2-3)
// taken as zero: 16-bit big-endian words summed with end-around carry, then inverted.
func Checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		if i == 2 {
			continue
		}
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 && len(b) > 4 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

// VerifyChecksumV4 reports whether the checksum carried in b matches its contents,
// i.e. the one's complement sum over the whole message is 0xffff.
func VerifyChecksumV4(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return binary.BigEndian.Uint16(b[2:4]) == Checksum(b)
}

func putChecksum(b []byte) {
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
}

func encodeEchoRequest(typ uint8, identifier, sequence uint16, extra []byte) []byte {
	wb := make([]byte, headerSizeICMP, headerSizeICMP+len(extra))
	wb[0] = typ
	wb[1] = 0
	binary.BigEndian.PutUint16(wb[4:6], identifier)
	binary.BigEndian.PutUint16(wb[6:8], sequence)
	return append(wb, extra...)
}

// EncodeEchoRequestV4 builds an ICMPv4 echo request with its checksum filled in.
// Datagram sockets may rewrite identifier (and with it the checksum) on the way out.
func EncodeEchoRequestV4(identifier, sequence uint16, extra []byte) []byte {
	wb := encodeEchoRequest(uint8(EchoRequestV4{}.Type()), identifier, sequence, extra)
	putChecksum(wb)
	return wb
}

// EncodeEchoRequestV6 builds an ICMPv6 echo request. The checksum stays zero: it covers
// an IPv6 pseudo-header only the kernel knows, and datagram sockets fill it in.
func EncodeEchoRequestV6(identifier, sequence uint16, extra []byte) []byte {
	return encodeEchoRequest(uint8(EchoRequestV6{}.Type()), identifier, sequence, extra)
}

// EncodeEchoRequest picks the encoder for the family.
func EncodeEchoRequest(family Family, identifier, sequence uint16, extra []byte) []byte {
	if family == FamilyV6 {
		return EncodeEchoRequestV6(identifier, sequence, extra)
	}
	return EncodeEchoRequestV4(identifier, sequence, extra)
}

// Marshal writes the message back to wire format. The stored checksum is written
// as is, so Marshal is the inverse of DecodeV4.
func (m *MessageV4) Marshal() ([]byte, error) {
	if m.Kind == nil {
		return nil, fmt.Errorf("icmpv4 message has no kind")
	}
	wb := make([]byte, headerSizeICMP)
	wb[0] = uint8(m.Kind.Type())
	binary.BigEndian.PutUint16(wb[2:4], m.Checksum)

	// kinds that carry nothing in bytes 4-7 keep them in the payload
	restInPayload := false
	switch k := m.Kind.(type) {
	case EchoReplyV4:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	case EchoRequestV4:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	case DestinationUnreachableV4:
		wb[1] = uint8(k.Code)
		wb[5] = k.Length
		binary.BigEndian.PutUint16(wb[6:8], k.NextHopMTU)
	case RedirectV4:
		wb[1] = uint8(k.Code)
		binary.BigEndian.PutUint32(wb[4:8], k.Address)
	case TimestampV4:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	case TimestampReplyV4:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	case TimeExceededV4:
		wb[1] = uint8(k.Code)
		restInPayload = true
	case BadIPHeaderV4:
		wb[1] = uint8(k.Code)
		restInPayload = true
	case SourceQuenchV4, RouterAdvertisementV4, RouterSolicitationV4:
		restInPayload = true
	default:
		return nil, fmt.Errorf("can't marshal icmpv4 kind %T", m.Kind)
	}

	if restInPayload {
		if len(m.Payload) < 4 {
			return nil, fmt.Errorf("payload of %T must hold the 4 rest-of-header bytes, got %d", m.Kind, len(m.Payload))
		}
		return append(wb[:4], m.Payload...), nil
	}
	return append(wb, m.Payload...), nil
}

// Marshal writes the message back to wire format with its stored checksum.
func (m *MessageV6) Marshal() ([]byte, error) {
	if m.Kind == nil {
		return nil, fmt.Errorf("icmpv6 message has no kind")
	}
	wb := make([]byte, headerSizeICMP, headerSizeICMP+len(m.Body))
	wb[0] = uint8(m.Kind.Type())
	binary.BigEndian.PutUint16(wb[2:4], m.Checksum)

	switch k := m.Kind.(type) {
	case DestinationUnreachableV6:
		wb[1] = uint8(k.Code)
	case PacketTooBigV6:
		binary.BigEndian.PutUint32(wb[4:8], k.MTU)
	case TimeExceededV6:
		wb[1] = uint8(k.Code)
	case ParameterProblemV6:
		wb[1] = uint8(k.Code)
		binary.BigEndian.PutUint32(wb[4:8], k.Pointer)
	case EchoRequestV6:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	case EchoReplyV6:
		binary.BigEndian.PutUint16(wb[4:6], k.Identifier)
		binary.BigEndian.PutUint16(wb[6:8], k.Sequence)
	default:
		return nil, fmt.Errorf("can't marshal icmpv6 kind %T", m.Kind)
	}
	return append(wb, m.Body...), nil
}
