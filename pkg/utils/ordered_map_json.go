package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the map as a JSON object, keys in insertion order. Go's
// encoding/json always emits object keys sorted lexically regardless of the
// order map literal fields were written in, so this walks the entries by hand
// to keep the embedded stdlib ABI descriptions diff-friendly.
func (om OrderedMap[K, V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, key := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(fmt.Sprint(key))
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valueJSON, err := json.Marshal(om.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valueJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving the key order it appears in
// the source document, using json.Decoder's token stream instead of decoding
// into a plain map (which would discard that order).
func (om *OrderedMap[K, V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		keyStr, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string object key, got %v", keyTok)
		}

		var key K
		if castKey, ok := any(keyStr).(K); ok {
			key = castKey
		} else {
			return fmt.Errorf("unsupported OrderedMap key type for %q", keyStr)
		}

		var value V
		if err := dec.Decode(&value); err != nil {
			return err
		}

		om.Set(key, value)
	}

	return nil
}
