package utils

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"

	"github.com/vishvananda/netlink"
)

// GetMaximumMTU returns the largest MTU over all local interfaces.
func GetMaximumMTU() (int, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, fmt.Errorf("failed to list interfaces: %w", err)
	}
	maximumMTU := -1
	for _, iface := range ifaces {
		if iface.MTU > maximumMTU {
			maximumMTU = iface.MTU
		}
	}
	if maximumMTU == -1 {
		return 0, fmt.Errorf("can't determine maximum MTU: no interfaces")
	}
	return maximumMTU, nil
}

// RouteInfo is what the kernel would do with a packet to Destination.
type RouteInfo struct {
	Destination netip.Addr
	Gateway     netip.Addr
	Source      netip.Addr
	Interface   string
	// smallest of the link MTU and the route MTU, 0 if neither is known
	MTU int
}

func (ri RouteInfo) String() string {
	parts := []string{ri.Destination.String()}
	if ri.Gateway.IsValid() {
		parts = append(parts, "via "+ri.Gateway.String())
	}
	if ri.Interface != "" {
		parts = append(parts, "dev "+ri.Interface)
	}
	if ri.Source.IsValid() {
		parts = append(parts, "src "+ri.Source.String())
	}
	if ri.MTU > 0 {
		parts = append(parts, fmt.Sprintf("mtu %d", ri.MTU))
	}
	return strings.Join(parts, " ")
}

func addrFromIP(ip net.IP) netip.Addr {
	if ip == nil {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// DescribeRoute asks the kernel (over netlink) which route reaches destination.
func DescribeRoute(destination netip.Addr) (*RouteInfo, error) {
	handle, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("failed to create netlink handle: %w", err)
	}
	defer handle.Close()

	routes, err := handle.RouteGet(destination.AsSlice())
	if err != nil {
		return nil, fmt.Errorf("failed to get route for %s: %w", destination, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no route to %s", destination)
	}

	route := routes[0]
	info := &RouteInfo{
		Destination: destination,
		Gateway:     addrFromIP(route.Gw),
		Source:      addrFromIP(route.Src),
	}

	mtus := make([]int, 0)
	if route.MTU > 0 {
		mtus = append(mtus, route.MTU)
	}
	if link, err := handle.LinkByIndex(route.LinkIndex); err == nil {
		info.Interface = link.Attrs().Name
		if linkMtu := link.Attrs().MTU; linkMtu > 0 {
			mtus = append(mtus, linkMtu)
		}
	}
	if len(mtus) > 0 {
		sort.Ints(mtus)
		info.MTU = mtus[0]
	}
	return info, nil
}
