package storage

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// EncodeValue renders a fetched value as JSON.
// Protobuf messages use their canonical JSON mapping; []byte is stored as a string.
func EncodeValue(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case proto.Message:
		data, err := protojson.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal proto: %w", err)
		}
		return data, nil
	case []byte:
		return json.Marshal(string(t))
	case json.RawMessage:
		if !json.Valid(t) {
			return json.Marshal(string(t))
		}
		return t, nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return data, nil
	}
}
