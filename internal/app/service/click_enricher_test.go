package service

import "testing"

func TestClickEnricher_Country_NoDatabase(t *testing.T) {
	e := NewClickEnricher(nil)

	if got := e.Country("8.8.8.8"); got != "" {
		t.Fatalf("expected empty country without a GeoIP database, got %q", got)
	}
	if got := e.Country(""); got != "" {
		t.Fatalf("expected empty country for empty IP, got %q", got)
	}
	if got := e.Country("not-an-ip"); got != "" {
		t.Fatalf("expected empty country for malformed IP, got %q", got)
	}
}

func TestClickEnricher_Device(t *testing.T) {
	e := NewClickEnricher(nil)

	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			name:      "desktop chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want:      "desktop",
		},
		{
			name:      "iphone safari",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want:      "mobile",
		},
		{
			name:      "googlebot",
			userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:      "bot",
		},
		{
			name:      "empty",
			userAgent: "",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Device(tt.userAgent); got != tt.want {
				t.Fatalf("Device(%q) = %q, want %q", tt.userAgent, got, tt.want)
			}
		})
	}
}
