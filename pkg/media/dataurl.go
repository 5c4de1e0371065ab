package media

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// DecodeDataURL splits an RFC 2397 data URL into its payload and content
// type. Both base64 and percent-encoded payloads are accepted.
func DecodeDataURL(raw string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL: missing payload")
	}

	params := strings.Split(header, ";")
	contentType := params[0]
	if contentType == "" {
		contentType = "text/plain"
	}

	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some clients strip padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("malformed data URL payload: %w", err)
			}
		}
		return data, contentType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("malformed data URL payload: %w", err)
	}
	return []byte(decoded), contentType, nil
}
