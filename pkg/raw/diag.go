package raw

import (
	"encoding/hex"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const maxDumpLen = 32

// DescribeDatagram gives a one-line, best-effort description of an ICMP datagram,
// including ones DecodeV4/DecodeV6 refuse. It never fails.
func DescribeDatagram(family Family, b []byte) string {
	dump := b
	if len(dump) > maxDumpLen {
		dump = dump[:maxDumpLen]
	}

	var firstLayer gopacket.LayerType
	switch family {
	case FamilyV4:
		firstLayer = layers.LayerTypeICMPv4
	case FamilyV6:
		firstLayer = layers.LayerTypeICMPv6
	default:
		return fmt.Sprintf("len=%d bytes=%s", len(b), hex.EncodeToString(dump))
	}

	pkt := gopacket.NewPacket(b, firstLayer, gopacket.NoCopy)
	if errLayer := pkt.ErrorLayer(); errLayer != nil && pkt.Layer(firstLayer) == nil {
		return fmt.Sprintf("%s len=%d undissectable (%v) bytes=%s", family, len(b), errLayer.Error(), hex.EncodeToString(dump))
	}

	if icmp4, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		return fmt.Sprintf("%s len=%d %s id=%d seq=%d checksum=%#04x", family, len(b), icmp4.TypeCode.String(), icmp4.Id, icmp4.Seq, icmp4.Checksum)
	}
	if icmp6, ok := pkt.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6); ok {
		desc := fmt.Sprintf("%s len=%d %s checksum=%#04x", family, len(b), icmp6.TypeCode.String(), icmp6.Checksum)
		if echo, ok := pkt.Layer(layers.LayerTypeICMPv6Echo).(*layers.ICMPv6Echo); ok {
			desc += fmt.Sprintf(" id=%d seq=%d", echo.Identifier, echo.SeqNumber)
		}
		return desc
	}
	return fmt.Sprintf("%s len=%d bytes=%s", family, len(b), hex.EncodeToString(dump))
}
