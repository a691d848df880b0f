package tus

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// Metadata is the Upload-Metadata of an upload.
type Metadata map[string]string

// Encode builds the Upload-Metadata header value: "key base64(value)" pairs joined by commas, keys sorted.
// Spaces and commas are removed from keys, an empty value is sent as the bare key.
func (m Metadata) Encode() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		key := strings.NewReplacer(" ", "", ",", "").Replace(k)
		if key == "" {
			continue
		}
		if m[k] == "" {
			pairs = append(pairs, key)
			continue
		}
		pairs = append(pairs, key+" "+base64.StdEncoding.EncodeToString([]byte(m[k])))
	}
	return strings.Join(pairs, ",")
}

// DecodeMetadata parses an Upload-Metadata header value.
func DecodeMetadata(header string) (Metadata, error) {
	m := Metadata{}
	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, encoded, _ := strings.Cut(pair, " ")
		value, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("decode metadata value of %s: %w", key, err)
		}
		m[key] = string(value)
	}
	return m, nil
}
