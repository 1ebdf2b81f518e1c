package cluster

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// resolveSeedSync resolves a host:port synchronously. Literal IPv4
// addresses resolve immediately without touching the resolver; everything
// else goes through net.DefaultResolver, matching spec.md §4.4 step 1
// ("synchronous immediate for literal IPs, asynchronous resolver
// otherwise" — this package always resolves on its own goroutine so the
// "asynchronous" half is simply not blocking the caller of the tender).
func resolveSeedSync(ctx context.Context, host string, port int) ([]netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(addr, uint16(port))}, nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve %s: %w", host, err)
	}
	out := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		a, ok := netip.AddrFromSlice(ip.To4())
		if !ok {
			continue
		}
		out = append(out, netip.AddrPortFrom(a, uint16(port)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cluster: host %s has no A records", host)
	}
	return out, nil
}

// resolveAsync resolves in the background and delivers the result on a
// channel, for seed hosts that are not literal IPs (spec.md §4.4 step 1).
func resolveAsync(ctx context.Context, host string, port int) <-chan resolveResult {
	ch := make(chan resolveResult, 1)
	go func() {
		addrs, err := resolveSeedSync(ctx, host, port)
		ch <- resolveResult{addrs: addrs, err: err}
	}()
	return ch
}

type resolveResult struct {
	addrs []netip.AddrPort
	err   error
}
