package raw

import (
	"context"
	"log"

	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgutils "example.com/multiping/pkg/utils"
)

const standardMTU int = 1500

// ReceiveBufferSize is large enough for any datagram the local interfaces can deliver.
func ReceiveBufferSize() int {
	mtu, err := pkgutils.GetMaximumMTU()
	if err != nil {
		log.Printf("can't determine maximum MTU, assuming %d: %v", standardMTU, err)
		return standardMTU
	}
	if mtu < standardMTU {
		return standardMTU
	}
	return mtu
}

func markAsSentBytes(ctx context.Context, family Family, n int) {
	counterStore := pkgmyprom.FromContext(ctx)
	if counterStore == nil {
		return
	}
	counterStore.NumBytesSent.WithLabelValues(family.String()).Add(float64(n))
}

func markAsReceivedBytes(ctx context.Context, family Family, n int) {
	counterStore := pkgmyprom.FromContext(ctx)
	if counterStore == nil {
		return
	}
	counterStore.NumBytesReceived.WithLabelValues(family.String()).Add(float64(n))
}
