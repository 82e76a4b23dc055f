package discovery

import (
	"fmt"
	"strings"
)

// EncodeTXT builds the TXT record strings for an advertisement.
func EncodeTXT(hostname, version string) []string {
	return []string{
		TXTKeyHostname + "=" + hostname,
		TXTKeyVersion + "=" + version,
	}
}

// DecodeTXT parses TXT record strings into a property map.
// The hostname property is required; entries without '=' are ignored.
func DecodeTXT(txt []string) (map[string]string, error) {
	props := make(map[string]string, len(txt))
	for _, entry := range txt {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		props[key] = value
	}

	if props[TXTKeyHostname] == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXT, TXTKeyHostname)
	}
	return props, nil
}
