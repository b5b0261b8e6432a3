package raw

import "fmt"

type DestinationUnreachableCode uint8

const (
	CodeNetworkUnreachable DestinationUnreachableCode = iota
	CodeHostUnreachable
	CodeProtocolUnreachable
	CodePortUnreachable
	// sent when the DF flag is set and the packet does not fit the next hop
	CodeFragmentationRequired
	CodeSourceRouteFailed
	CodeNetworkUnknown
	CodeDestHostUnknown
	CodeSourceHostIsolated
	CodeNetAdministrativelyProhibited
	CodeHostAdministrativelyProhibited
	CodeNetworkUnreachableForToS
	CodeHostUnreachableForToS
	CodeCommAdministrativelyProhibited
	CodeHostPrecedenceViolation
	CodePrecedenceCutoffInEffect
)

var destinationUnreachableCodeNames = [...]string{
	"network unreachable",
	"host unreachable",
	"protocol unreachable",
	"port unreachable",
	"fragmentation required",
	"source route failed",
	"network unknown",
	"destination host unknown",
	"source host isolated",
	"network administratively prohibited",
	"host administratively prohibited",
	"network unreachable for ToS",
	"host unreachable for ToS",
	"communication administratively prohibited",
	"host precedence violation",
	"precedence cutoff in effect",
}

func parseDestinationUnreachableCode(code uint8) (DestinationUnreachableCode, bool) {
	if int(code) >= len(destinationUnreachableCodeNames) {
		return 0, false
	}
	return DestinationUnreachableCode(code), true
}

func (c DestinationUnreachableCode) String() string {
	if int(c) < len(destinationUnreachableCodeNames) {
		return destinationUnreachableCodeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

type RedirectCode uint8

const (
	CodeRedirectNetwork RedirectCode = iota
	CodeRedirectHost
	CodeRedirectToSAndNetwork
	CodeRedirectToSAndHost
)

func parseRedirectCode(code uint8) (RedirectCode, bool) {
	if code > uint8(CodeRedirectToSAndHost) {
		return 0, false
	}
	return RedirectCode(code), true
}

type TimeExceededCode uint8

const (
	CodeExpiredInTransit TimeExceededCode = iota
	CodeFragmentReassemblyTimeExceeded
)

func parseTimeExceededCode(code uint8) (TimeExceededCode, bool) {
	if code > uint8(CodeFragmentReassemblyTimeExceeded) {
		return 0, false
	}
	return TimeExceededCode(code), true
}

func (c TimeExceededCode) String() string {
	switch c {
	case CodeExpiredInTransit:
		return "ttl expired in transit"
	case CodeFragmentReassemblyTimeExceeded:
		return "fragment reassembly time exceeded"
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

type BadIPHeaderCode uint8

const (
	CodePointerIndicatesError BadIPHeaderCode = iota
	CodeMissingRequiredOption
	CodeBadLength
)

func parseBadIPHeaderCode(code uint8) (BadIPHeaderCode, bool) {
	if code > uint8(CodeBadLength) {
		return 0, false
	}
	return BadIPHeaderCode(code), true
}

type DestinationUnreachableV6Code uint8

const (
	CodeNoRouteToDestination DestinationUnreachableV6Code = iota
	CodeV6CommAdministrativelyProhibited
	CodeBeyondScopeOfSourceAddress
	CodeAddressUnreachable
	CodeV6PortUnreachable
	CodeSourceAddressFailedPolicy
	CodeRejectRouteToDestination
	CodeErrorInSourceRoutingHeader
)

func parseDestinationUnreachableV6Code(code uint8) (DestinationUnreachableV6Code, bool) {
	if code > uint8(CodeErrorInSourceRoutingHeader) {
		return 0, false
	}
	return DestinationUnreachableV6Code(code), true
}

type ParameterProblemCode uint8

const (
	CodeErroneousHeaderField ParameterProblemCode = iota
	CodeUnrecognizedNextHeaderType
	CodeUnrecognizedIPv6Option
)

func parseParameterProblemCode(code uint8) (ParameterProblemCode, bool) {
	if code > uint8(CodeUnrecognizedIPv6Option) {
		return 0, false
	}
	return ParameterProblemCode(code), true
}
