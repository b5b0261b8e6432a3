package hoststats

// ErrorKind classifies why a ping to a host did not succeed.
type ErrorKind string

const (
	ErrorNetworkUnreachable         ErrorKind = "network-unreachable"
	ErrorHostUnreachable            ErrorKind = "host-unreachable"
	ErrorPermissionDenied           ErrorKind = "permission-denied"
	ErrorNoBufferSpace              ErrorKind = "no-buffer-space"
	ErrorMessageTooLong             ErrorKind = "message-too-long"
	ErrorConnectionRefused          ErrorKind = "connection-refused"
	ErrorTimeout                    ErrorKind = "timeout"
	ErrorICMPDestinationUnreachable ErrorKind = "icmp-destination-unreachable"
	ErrorICMPTimeExceeded           ErrorKind = "icmp-time-exceeded"
	ErrorICMPPacketTooBig           ErrorKind = "icmp-packet-too-big"
	ErrorICMPParameterProblem       ErrorKind = "icmp-parameter-problem"
	ErrorOther                      ErrorKind = "other"
)

func (k ErrorKind) String() string {
	return string(k)
}

type UpdateType int

const (
	UpdateSent UpdateType = iota
	UpdateReceived
	UpdateError
)

func (t UpdateType) String() string {
	switch t {
	case UpdateSent:
		return "sent"
	case UpdateReceived:
		return "received"
	case UpdateError:
		return "error"
	}
	return "unknown"
}

// StatusUpdate is one event about the host at HostIndex in the host table.
// LatencyMicros is meaningful for UpdateReceived only, Error for UpdateError only.
type StatusUpdate struct {
	Type          UpdateType
	HostIndex     int
	LatencyMicros int64
	Error         ErrorKind
}

func Sent(hostIndex int) StatusUpdate {
	return StatusUpdate{Type: UpdateSent, HostIndex: hostIndex}
}

func Received(hostIndex int, latencyMicros int64) StatusUpdate {
	return StatusUpdate{Type: UpdateReceived, HostIndex: hostIndex, LatencyMicros: latencyMicros}
}

func Failed(hostIndex int, kind ErrorKind) StatusUpdate {
	return StatusUpdate{Type: UpdateError, HostIndex: hostIndex, Error: kind}
}
