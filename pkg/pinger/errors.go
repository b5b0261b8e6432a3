package pinger

import (
	"errors"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgraw "example.com/multiping/pkg/raw"
	"golang.org/x/sys/unix"
)

var errnoKinds = []struct {
	errno unix.Errno
	kind  pkghoststats.ErrorKind
}{
	{unix.ENETUNREACH, pkghoststats.ErrorNetworkUnreachable},
	{unix.ENETDOWN, pkghoststats.ErrorNetworkUnreachable},
	{unix.EHOSTUNREACH, pkghoststats.ErrorHostUnreachable},
	{unix.EHOSTDOWN, pkghoststats.ErrorHostUnreachable},
	{unix.EACCES, pkghoststats.ErrorPermissionDenied},
	{unix.EPERM, pkghoststats.ErrorPermissionDenied},
	{unix.ENOBUFS, pkghoststats.ErrorNoBufferSpace},
	{unix.EMSGSIZE, pkghoststats.ErrorMessageTooLong},
	{unix.ECONNREFUSED, pkghoststats.ErrorConnectionRefused},
	{unix.ETIMEDOUT, pkghoststats.ErrorTimeout},
}

// ClassifyError maps a socket error to the kind reported for the host.
func ClassifyError(err error) pkghoststats.ErrorKind {
	if err == nil {
		return pkghoststats.ErrorOther
	}
	for _, ek := range errnoKinds {
		if errors.Is(err, ek.errno) {
			return ek.kind
		}
	}
	if pkgraw.IsTimeout(err) {
		return pkghoststats.ErrorTimeout
	}
	return pkghoststats.ErrorOther
}

// classifyICMPError reports the kind of an ICMP error message, and false for
// anything that is not an error report.
func classifyICMPError(msg pkgraw.Message) (pkghoststats.ErrorKind, bool) {
	switch m := msg.(type) {
	case *pkgraw.MessageV4:
		switch m.Kind.(type) {
		case pkgraw.DestinationUnreachableV4:
			return pkghoststats.ErrorICMPDestinationUnreachable, true
		case pkgraw.TimeExceededV4:
			return pkghoststats.ErrorICMPTimeExceeded, true
		case pkgraw.BadIPHeaderV4:
			return pkghoststats.ErrorICMPParameterProblem, true
		}
	case *pkgraw.MessageV6:
		switch m.Kind.(type) {
		case pkgraw.DestinationUnreachableV6:
			return pkghoststats.ErrorICMPDestinationUnreachable, true
		case pkgraw.TimeExceededV6:
			return pkghoststats.ErrorICMPTimeExceeded, true
		case pkgraw.PacketTooBigV6:
			return pkghoststats.ErrorICMPPacketTooBig, true
		case pkgraw.ParameterProblemV6:
			return pkghoststats.ErrorICMPParameterProblem, true
		}
	}
	return "", false
}
