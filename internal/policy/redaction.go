package policy

import (
	"net/url"
	"regexp"
	"strings"
)

var dsnPasswordPattern = regexp.MustCompile(`(?i)(password=)(\S+)`)

// RedactConnString masks credentials in a database or cache connection string
// so it can be logged. Both URL and key=value DSN forms are handled.
func RedactConnString(raw string) (redacted string, changed bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "[REDACTED_URL]", true
		}
		out := u.Redacted()
		if q := u.Query(); q.Has("password") {
			q.Set("password", "xxxxx")
			u.RawQuery = q.Encode()
			out = u.Redacted()
		}
		return out, out != raw
	}

	out := dsnPasswordPattern.ReplaceAllString(raw, "${1}xxxxx")
	return out, out != raw
}
