package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
)

// Endpoint identifies a participant on the wire. Equality is address+port.
type Endpoint = netip.AddrPort

// NormalizeEndpoint unmaps IPv4-in-IPv6 addresses so that the same peer
// always compares equal regardless of the socket family it arrived on.
func NormalizeEndpoint(ap netip.AddrPort) Endpoint {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// ParseEndpoint parses "ip:port".
func ParseEndpoint(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	return NormalizeEndpoint(ap), nil
}

// MustParseEndpoint is ParseEndpoint for literals in tests and defaults.
func MustParseEndpoint(s string) Endpoint {
	ep, err := ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// ResolveEndpoint turns a host name or IP literal into an Endpoint. When the
// name resolves to several addresses the first one is used.
func ResolveEndpoint(ctx context.Context, host string, port int) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, fmt.Errorf("empty host")
	}
	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port %d", port)
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		parsed, perr := strconv.Atoi(p)
		if perr != nil {
			return Endpoint{}, fmt.Errorf("invalid port in %q: %w", host, perr)
		}
		if parsed <= 0 || parsed > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port in %q: %d", host, parsed)
		}
		host, port = h, parsed
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return NormalizeEndpoint(netip.AddrPortFrom(addr, uint16(port))), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return Endpoint{}, fmt.Errorf("no addresses for %q", host)
	}
	return NormalizeEndpoint(netip.AddrPortFrom(addrs[0], uint16(port))), nil
}

// LocalIPs lists the non-loopback unicast addresses of this machine, IPv4
// first. The host shows these so joining players know where to connect.
func LocalIPs() ([]netip.Addr, error) {
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}
	var out []netip.Addr
	for _, a := range ifaceAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast() {
			continue
		}
		out = append(out, addr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Is4() && !out[j].Is4()
	})
	return out, nil
}
