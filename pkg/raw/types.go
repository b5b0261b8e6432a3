package raw

import (
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const ipv4HeaderLen int = 20
const ipv6HeaderLen int = 40
const headerSizeICMP int = 8
const headerSizeICMPTimestamp int = 20
const protocolNumberICMPv4 int = 1
const protocolNumberICMPv6 int = 58

// x/net no longer lists the deprecated source quench type
const icmpTypeSourceQuench ipv4.ICMPType = 4

// Family selects the address family, and with it the ICMP flavour, of a socket or a datagram.
type Family int

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// ProtocolNumber is the IANA protocol number of ICMP in this family.
func (f Family) ProtocolNumber() int {
	if f == FamilyV6 {
		return protocolNumberICMPv6
	}
	return protocolNumberICMPv4
}

// IPHeaderLen is the size of the fixed IP header that precedes ICMP in this family.
func (f Family) IPHeaderLen() int {
	if f == FamilyV6 {
		return ipv6HeaderLen
	}
	return ipv4HeaderLen
}

// Message is a decoded ICMPv4 or ICMPv6 message.
type Message interface {
	Family() Family
	Marshal() ([]byte, error)
	isMessage()
}

// MessageV4 is a decoded ICMPv4 message.
type MessageV4 struct {
	Kind KindV4
	// Checksum as transmitted
	Checksum uint16
	// Rest-of-header bytes not carried by Kind, followed by the message data.
	Payload []byte
}

func (*MessageV4) Family() Family { return FamilyV4 }
func (*MessageV4) isMessage()     {}

// MessageV6 is a decoded ICMPv6 message.
type MessageV6 struct {
	Kind     KindV6
	Checksum uint16
	Body     []byte
}

func (*MessageV6) Family() Family { return FamilyV6 }
func (*MessageV6) isMessage()     {}

// KindV4 is the type-specific part of an ICMPv4 message.
type KindV4 interface {
	Type() ipv4.ICMPType
	isKindV4()
}

type EchoReplyV4 struct {
	Identifier uint16
	Sequence   uint16
}

type DestinationUnreachableV4 struct {
	Code       DestinationUnreachableCode
	Length     uint8
	NextHopMTU uint16
}

// SourceQuenchV4 is deprecated, but still decoded.
type SourceQuenchV4 struct{}

type RedirectV4 struct {
	Code    RedirectCode
	Address uint32
}

type EchoRequestV4 struct {
	Identifier uint16
	Sequence   uint16
}

type RouterAdvertisementV4 struct{}

type RouterSolicitationV4 struct{}

type TimeExceededV4 struct {
	Code TimeExceededCode
}

type BadIPHeaderV4 struct {
	Code BadIPHeaderCode
}

type TimestampV4 struct {
	Identifier uint16
	Sequence   uint16
	Originate  uint32
	Receive    uint32
	Transmit   uint32
}

type TimestampReplyV4 struct {
	Identifier uint16
	Sequence   uint16
	Originate  uint32
	Receive    uint32
	Transmit   uint32
}

func (EchoReplyV4) Type() ipv4.ICMPType              { return ipv4.ICMPTypeEchoReply }
func (DestinationUnreachableV4) Type() ipv4.ICMPType { return ipv4.ICMPTypeDestinationUnreachable }
func (SourceQuenchV4) Type() ipv4.ICMPType           { return icmpTypeSourceQuench }
func (RedirectV4) Type() ipv4.ICMPType               { return ipv4.ICMPTypeRedirect }
func (EchoRequestV4) Type() ipv4.ICMPType            { return ipv4.ICMPTypeEcho }
func (RouterAdvertisementV4) Type() ipv4.ICMPType    { return ipv4.ICMPTypeRouterAdvertisement }
func (RouterSolicitationV4) Type() ipv4.ICMPType     { return ipv4.ICMPTypeRouterSolicitation }
func (TimeExceededV4) Type() ipv4.ICMPType           { return ipv4.ICMPTypeTimeExceeded }
func (BadIPHeaderV4) Type() ipv4.ICMPType            { return ipv4.ICMPTypeParameterProblem }
func (TimestampV4) Type() ipv4.ICMPType              { return ipv4.ICMPTypeTimestamp }
func (TimestampReplyV4) Type() ipv4.ICMPType         { return ipv4.ICMPTypeTimestampReply }

func (EchoReplyV4) isKindV4()              {}
func (DestinationUnreachableV4) isKindV4() {}
func (SourceQuenchV4) isKindV4()           {}
func (RedirectV4) isKindV4()               {}
func (EchoRequestV4) isKindV4()            {}
func (RouterAdvertisementV4) isKindV4()    {}
func (RouterSolicitationV4) isKindV4()     {}
func (TimeExceededV4) isKindV4()           {}
func (BadIPHeaderV4) isKindV4()            {}
func (TimestampV4) isKindV4()              {}
func (TimestampReplyV4) isKindV4()         {}

// KindV6 is the type-specific part of an ICMPv6 message.
type KindV6 interface {
	Type() ipv6.ICMPType
	isKindV6()
}

type DestinationUnreachableV6 struct {
	Code DestinationUnreachableV6Code
}

type PacketTooBigV6 struct {
	MTU uint32
}

// TimeExceededV6 shares its code set with ICMPv4.
type TimeExceededV6 struct {
	Code TimeExceededCode
}

type ParameterProblemV6 struct {
	Code    ParameterProblemCode
	Pointer uint32
}

type EchoRequestV6 struct {
	Identifier uint16
	Sequence   uint16
}

type EchoReplyV6 struct {
	Identifier uint16
	Sequence   uint16
}

func (DestinationUnreachableV6) Type() ipv6.ICMPType { return ipv6.ICMPTypeDestinationUnreachable }
func (PacketTooBigV6) Type() ipv6.ICMPType           { return ipv6.ICMPTypePacketTooBig }
func (TimeExceededV6) Type() ipv6.ICMPType           { return ipv6.ICMPTypeTimeExceeded }
func (ParameterProblemV6) Type() ipv6.ICMPType       { return ipv6.ICMPTypeParameterProblem }
func (EchoRequestV6) Type() ipv6.ICMPType            { return ipv6.ICMPTypeEchoRequest }
func (EchoReplyV6) Type() ipv6.ICMPType              { return ipv6.ICMPTypeEchoReply }

func (DestinationUnreachableV6) isKindV6() {}
func (PacketTooBigV6) isKindV6()           {}
func (TimeExceededV6) isKindV6()           {}
func (ParameterProblemV6) isKindV6()       {}
func (EchoRequestV6) isKindV6()            {}
func (EchoReplyV6) isKindV6()              {}
