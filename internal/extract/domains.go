// Package extract derives secondary signals from decoded message bodies.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

// urlPattern matches the scheme and host of an absolute HTTP/HTTPS link.
// The host is terminated by a slash, whitespace, or end of input.
var urlPattern = regexp.MustCompile(`https?://([\w.-]+)`)

// Domains scans body text for absolute HTTP/HTTPS links and returns the
// deduplicated set of hostnames, sorted for a stable representation.
// It returns nil when the body contains no links.
func Domains(body string) []string {
	matches := urlPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var domains []string
	for _, m := range matches {
		host := m[1]
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		domains = append(domains, host)
	}

	sort.Strings(domains)
	return domains
}

// Join renders a domain set as the comma-joined form persisted in the
// store. It returns nil for an empty set so the column stays absent.
func Join(domains []string) *string {
	if len(domains) == 0 {
		return nil
	}
	joined := strings.Join(domains, ",")
	return &joined
}
