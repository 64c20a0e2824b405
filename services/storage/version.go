package storage

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// VersionWrapper tags an encoded value with the schema version it was written with,
// so older records can still be decoded after the structure changes.
type VersionWrapper struct {
	Version int              `json:"version"`
	Value   *json.RawMessage `json:"value"`
}

// VersionJSONEncode encodes o as JSON inside a VersionWrapper.
func VersionJSONEncode(version int, o interface{}) ([]byte, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	value := json.RawMessage(raw)
	return json.Marshal(VersionWrapper{
		Version: version,
		Value:   &value,
	})
}

// VersionJSONDecode unwraps data written by VersionJSONEncode and
// hands the inner value to decF together with its version.
func VersionJSONDecode(data []byte, decF func(version int, dec *json.Decoder) error) error {
	var wrapper VersionWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if wrapper.Value == nil {
		return errors.New("empty value")
	}
	return decF(wrapper.Version, json.NewDecoder(bytes.NewReader(*wrapper.Value)))
}
