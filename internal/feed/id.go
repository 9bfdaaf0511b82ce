package feed

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// CandidateID derives the dedup key: 32 hex chars of sha256 over the GUID
// when present, otherwise over the canonical URL.
func CandidateID(guid, link string) string {
	key := strings.TrimSpace(guid)
	if key == "" {
		key = CanonicalURL(link)
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:16])
}

// CanonicalURL lowercases scheme and host, drops the fragment and utm_*
// tracking parameters, and trims a trailing slash from the path.
// Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
