package alertstore

import (
	"encoding/json"

	"github.com/cortexd/cortexd/internal/types"
)

// encodeMetadata serializes Metadata to the JSON text stored in the
// metadata column. Empty metadata is stored as an empty string rather than
// "{}" or "null" so the column reads clean in ad-hoc inspection.
func encodeMetadata(m types.Metadata) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeMetadata is the inverse of encodeMetadata. A malformed or empty
// column yields nil metadata, matching Metadata.UnmarshalJSON's tolerant
// read-side contract.
func decodeMetadata(raw string) types.Metadata {
	if raw == "" {
		return nil
	}
	var m types.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
