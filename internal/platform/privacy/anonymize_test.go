package privacy

import (
	"testing"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ipv4", input: "192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv4 mapped ipv6", input: "::ffff:192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv6", input: "2001:db8:85a3::8a2e:370:7334", expected: "2001:db8:85a3::"},
		{name: "loopback v6", input: "::1", expected: "::"},
		{name: "empty", input: "", expected: "unknown"},
		{name: "unknown", input: "unknown", expected: "unknown"},
		{name: "garbage", input: "not-an-ip", expected: "invalid"},
		{name: "with port", input: "192.168.1.1:8080", expected: "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnonymizeIP(tt.input); got != tt.expected {
				t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAnonymizeIP_SameNetworkProducesSameOutput(t *testing.T) {
	a := AnonymizeIP("10.20.30.1")
	for _, ip := range []string{"10.20.30.99", "10.20.30.254"} {
		if got := AnonymizeIP(ip); got != a {
			t.Errorf("AnonymizeIP(%q) = %q, want %q", ip, got, a)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"ada@x.io":   "a***@x.io",
		" bob@x.io ": "b***@x.io",
		"no-at-sign": "***",
		"@x.io":      "***",
		"":           "***",
	}
	for in, want := range tests {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
