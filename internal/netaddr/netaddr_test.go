package netaddr

import "testing"

func TestNormalizeIPv6(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"::1", "0000:0000:0000:0000:0000:0000:0000:0001"},
		{"0000:0000:0000:0000:0000:0000:0000:0001", "0000:0000:0000:0000:0000:0000:0000:0001"},
		{"fe80::1%eth0", "fe80:0000:0000:0000:0000:0000:0000:0001"},
		{"2001:db8::ff00:42:8329", "2001:0db8:0000:0000:0000:ff00:0042:8329"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, c := range cases {
		if got := NormalizeIPv6(c.in); got != c.want {
			t.Errorf("NormalizeIPv6(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"::1", "fe80::1%eth0", "2001:db8::1", "10.0.0.1"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}

func TestFormatIPv6FromCaptured(t *testing.T) {
	raw := "32:1:13:184:0:0:0:0:0:0:0:0:0:0:0:1"
	want := "2001:0db8:0000:0000:0000:0000:0000:0001"
	if got := FormatIPv6FromCaptured(raw); got != want {
		t.Errorf("FormatIPv6FromCaptured(%q) = %q, want %q", raw, got, want)
	}
}

func TestFormatIPv6FromCapturedFallsBackOnNonByteForm(t *testing.T) {
	in := "::1"
	if got := FormatIPv6FromCaptured(in); got != NormalizeIPv6(in) {
		t.Errorf("expected fallback to NormalizeIPv6, got %q", got)
	}
}

func TestAddrPort(t *testing.T) {
	if got := AddrPort("10.0.0.1", 443); got != "10.0.0.1:443" {
		t.Errorf("AddrPort() = %q, want %q", got, "10.0.0.1:443")
	}
}
