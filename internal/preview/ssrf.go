package preview

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Internal-style TLDs that never resolve to anything we should fetch.
var internalTLDs = map[string]bool{
	"local":     true,
	"localhost": true,
	"internal":  true,
	"intranet":  true,
	"lan":       true,
	"home":      true,
	"corp":      true,
}

// Guard rejects URLs the fetcher must never touch: non-HTTP schemes,
// loopback and private-range addresses, and internal hostnames. It resolves
// hostnames so a public-looking name pointing at a private address is
// caught too.
type Guard struct {
	lookup func(ctx context.Context, host string) ([]netip.Addr, error)
}

func NewGuard() *Guard {
	return &Guard{
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Validate returns a descriptive error when the URL is unsafe to fetch.
func (g *Guard) Validate(ctx context.Context, u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(addr)
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if !strings.Contains(lower, ".") {
		return fmt.Errorf("bare hostname %q is not allowed", host)
	}
	tld := lower[strings.LastIndex(lower, ".")+1:]
	if internalTLDs[tld] {
		return fmt.Errorf("internal hostname %q is not allowed", host)
	}

	addrs, err := g.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("could not resolve %q: %w", host, err)
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return fmt.Errorf("loopback address %s is not allowed", addr)
	case addr.IsPrivate():
		return fmt.Errorf("private address %s is not allowed", addr)
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s is not allowed", addr)
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified address %s is not allowed", addr)
	case addr.IsMulticast():
		return fmt.Errorf("multicast address %s is not allowed", addr)
	}
	return nil
}
