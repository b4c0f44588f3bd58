// Package netaddr canonicalizes IPv4/IPv6 addresses so every other
// component can compare them as plain strings. Without this, equality is
// broken: "::1" and "0000:0000:0000:0000:0000:0000:0000:0001" are the same
// address but different strings.
//
// All functions here are pure and stateless.
package netaddr

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeIPv6 strips any zone id, expands "::" to a full 8-group form and
// zero-pads each group to 4 lowercase hex digits. IPv4 addresses (containing
// a ".") pass through unchanged.
func NormalizeIPv6(s string) string {
	if strings.Contains(s, ".") {
		return s
	}
	if idx := strings.IndexByte(s, '%'); idx >= 0 {
		s = s[:idx]
	}
	groups := expandGroups(s)
	if groups == nil {
		return s
	}
	padded := make([]string, len(groups))
	for i, g := range groups {
		padded[i] = fmt.Sprintf("%04s", strings.ToLower(g))
	}
	return strings.Join(padded, ":")
}

// expandGroups splits s on ":" and, if a "::" run is present, fills in the
// missing zero groups so the result always has exactly 8 entries.
func expandGroups(s string) []string {
	if s == "" {
		return nil
	}
	if strings.Contains(s, "::") {
		parts := strings.SplitN(s, "::", 2)
		left := splitNonEmpty(parts[0])
		right := splitNonEmpty(parts[1])
		missing := 8 - len(left) - len(right)
		if missing < 0 {
			missing = 0
		}
		zeros := make([]string, missing)
		for i := range zeros {
			zeros[i] = "0"
		}
		out := append(append(left, zeros...), right...)
		for len(out) < 8 {
			out = append(out, "0")
		}
		return out
	}
	groups := strings.Split(s, ":")
	if len(groups) != 8 {
		return nil
	}
	return groups
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}

// FormatIPv6FromCaptured accepts a 16-element decimal-byte form
// ("32:1:13:184:0:0:0:0:0:0:0:0:0:0:0:1") as produced by some capture
// libraries' raw byte dumps and renders it in the canonical colon-hex form.
// If raw doesn't look like a byte-array form it falls back to
// NormalizeIPv6, treating it as already colon-hex.
func FormatIPv6FromCaptured(raw string) string {
	parts := strings.Split(raw, ":")
	if len(parts) != 16 {
		return NormalizeIPv6(raw)
	}
	bytes := make([]byte, 16)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return NormalizeIPv6(raw)
		}
		bytes[i] = byte(v)
	}
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", bytes[i*2], bytes[i*2+1])
	}
	return strings.Join(groups, ":")
}

// Normalize canonicalizes any address string (IPv4 passthrough, IPv6 via
// NormalizeIPv6). Components that don't know in advance whether they're
// holding a v4 or v6 string should call this rather than NormalizeIPv6
// directly.
func Normalize(s string) string {
	return NormalizeIPv6(s)
}

// AddrPort joins a normalized address and port as "addr:port", the
// building block for every endpoint key in the matcher and connection
// tracker.
func AddrPort(addr string, port uint16) string {
	return addr + ":" + strconv.Itoa(int(port))
}
