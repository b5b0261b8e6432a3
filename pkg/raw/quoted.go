package raw

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// QuotedDestination returns the destination of the datagram an ICMP error message quotes,
// i.e. the host the error is about. The error itself usually comes from a router on the way.
// It reports false for messages that are not errors or quote too little to tell.
func QuotedDestination(msg Message) (netip.Addr, bool) {
	switch m := msg.(type) {
	case *MessageV4:
		var quoted []byte
		switch m.Kind.(type) {
		case DestinationUnreachableV4:
			quoted = m.Payload
		case TimeExceededV4, BadIPHeaderV4:
			// the 4 unused rest-of-header bytes come first
			if len(m.Payload) < 4 {
				return netip.Addr{}, false
			}
			quoted = m.Payload[4:]
		default:
			return netip.Addr{}, false
		}
		originPacket := gopacket.NewPacket(quoted, layers.LayerTypeIPv4, gopacket.Default)
		originIPPacket, ok := originPacket.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok || originIPPacket.Version != 4 {
			return netip.Addr{}, false
		}
		return addrFromIP(originIPPacket.DstIP)
	case *MessageV6:
		switch m.Kind.(type) {
		case DestinationUnreachableV6, PacketTooBigV6, TimeExceededV6, ParameterProblemV6:
		default:
			return netip.Addr{}, false
		}
		originPacket := gopacket.NewPacket(m.Body, layers.LayerTypeIPv6, gopacket.Default)
		originIPPacket, ok := originPacket.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		if !ok || originIPPacket.Version != 6 {
			return netip.Addr{}, false
		}
		return addrFromIP(originIPPacket.DstIP)
	}
	return netip.Addr{}, false
}

func addrFromIP(ip []byte) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
