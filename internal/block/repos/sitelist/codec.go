package sitelist

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a list as a JSON array. A nil list encodes as [].
func Encode(sites []string) ([]byte, error) {
	if sites == nil {
		sites = []string{}
	}
	return json.Marshal(sites)
}

// Decode parses a JSON array of strings. A JSON null decodes as an empty list.
func Decode(b []byte) ([]string, error) {
	var sites []string
	if err := json.Unmarshal(b, &sites); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if sites == nil {
		sites = []string{}
	}
	return sites, nil
}
