package request

import (
	"strings"

	"github.com/mssola/useragent"
)

// describeClient reduces a User-Agent header to "Browser on OS" for access
// logs, e.g. "Chrome on Mac OS X". Bots keep their name with a "bot:" prefix.
func describeClient(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return "bot:" + browser
	}

	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	if browser == "" {
		browser = "unknown browser"
	}
	if os == "" {
		os = "unknown os"
	}
	return browser + " on " + os
}
