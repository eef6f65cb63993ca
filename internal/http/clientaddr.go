package http

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// clientAddr extracts the best client address candidate from proxy headers,
// preferring public IPv4 over IPv6. Falls back to the socket peer address.
// The address only feeds the fingerprint and the geo lookup, so a loopback
// fallback is acceptable.
func clientAddr(c *fiber.Ctx) string {
	if ip := selectPreferredAddr(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP"} {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredAddr([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredAddr(forwardedFor(forwarded)); ip != "" {
			return ip
		}
	}

	if ip := c.IP(); ip != "" && ip != "0.0.0.0" && ip != "::" {
		if clean, parsed := normalizeAddr(ip); parsed != nil {
			return clean
		}
	}

	return "127.0.0.1"
}

// selectPreferredAddr picks the first public IPv4 in the list, or the first
// public IPv6 if no IPv4 is present.
func selectPreferredAddr(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeAddr(raw)
		if parsed == nil || isPrivateAddr(parsed) {
			continue
		}
		if parsed.To4() != nil {
			return clean
		}
		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

// normalizeAddr strips quotes, zone identifiers, ports and brackets, and
// unmaps 4-in-6 addresses.
func normalizeAddr(raw string) (string, net.IP) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"")
	if clean == "" {
		return "", nil
	}

	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrString(addrPort.Addr())
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return addrString(addr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeAddr(host)
	}

	return "", nil
}

func addrString(addr netip.Addr) (string, net.IP) {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	s := addr.String()
	return s, net.ParseIP(s)
}

var privateBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
		"127.0.0.0/8",
	}
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, _ := net.ParseCIDR(cidr)
		blocks = append(blocks, block)
	}
	return blocks
}()

func isPrivateAddr(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedFor extracts the for= members of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var candidates []string
	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, part[len("for="):])
			}
		}
	}
	return candidates
}
