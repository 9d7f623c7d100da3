package postgres

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fastygo/studyplanner/domain"
)

// metadataColumn encodes activity and session metadata for a JSONB column. An empty map is
// stored as NULL.
func metadataColumn(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}

// decodeColumn decodes a JSONB column into dest. NULL leaves dest untouched; a malformed
// document is reported as an invalid payload.
func decodeColumn(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Join(domain.ErrInvalidPayload, err)
	}
	return nil
}

// timestampOrDefault lets the column default apply when t is unset.
func timestampOrDefault(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
