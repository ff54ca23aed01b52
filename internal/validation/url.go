// Package validation checks user-supplied URLs before they reach a shell
// command or an HTML attribute.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// shellMeta are characters that could enable command injection when a URL
// is handed to a platform opener.
var shellMeta = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}

// ValidateURL validates URLs for browser auto-open functionality.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow http/https schemes to prevent protocol handlers
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	if char, found := containsAny(rawURL, shellMeta); found {
		return fmt.Errorf("URL contains dangerous character: %q", char)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateStylesheet validates the page stylesheet reference. It may be an
// absolute http(s) URL or a path; every other scheme is rejected.
func ValidateStylesheet(ref string) error {
	if ref == "" {
		return nil
	}

	if char, found := containsAny(ref, []string{"\"", "'", "<", ">", "`", "\n", "\r"}); found {
		return fmt.Errorf("stylesheet contains invalid character: %q", char)
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid stylesheet URL: %w", err)
	}

	switch parsed.Scheme {
	case "":
		if parsed.Path == "" {
			return fmt.Errorf("stylesheet reference has no path")
		}
		return nil
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("stylesheet URL must have a valid hostname")
		}
		return nil
	default:
		return fmt.Errorf("invalid stylesheet scheme: %q (only http/https allowed)", parsed.Scheme)
	}
}

func containsAny(s string, chars []string) (string, bool) {
	for _, char := range chars {
		if strings.Contains(s, char) {
			return char, true
		}
	}
	return "", false
}
