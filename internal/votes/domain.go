package votes

import (
	"fmt"
	"net/url"
	"strings"
)

// domainFromURL extracts the hostname a post links to. Root-relative URLs
// are platform-internal links and count against the platform's own domain.
func domainFromURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "/") {
		return "reddit.com", nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no hostname", raw)
	}

	return strings.TrimPrefix(host, "www."), nil
}
