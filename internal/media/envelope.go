package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// UnwrapRecords extracts raw records from a decoded response body. Bare
// arrays are used directly; objects are searched for a "content" array and
// then for "_embedded"[embeddedKey]. Anything else yields no records.
// Entries that are not objects are skipped.
func UnwrapRecords(body interface{}, embeddedKey string) []map[string]interface{} {
	switch val := body.(type) {
	case []map[string]interface{}:
		return val
	case []interface{}:
		return objects(val)
	case map[string]interface{}:
		if content, ok := val["content"].([]interface{}); ok {
			return objects(content)
		}
		if embedded, ok := val["_embedded"].(map[string]interface{}); ok && embeddedKey != "" {
			if list, ok := embedded[embeddedKey].([]interface{}); ok {
				return objects(list)
			}
		}
	}
	return []map[string]interface{}{}
}

func objects(list []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// DecodeBody decodes a JSON body keeping numbers as json.Number so large ids
// survive. An empty body decodes to nil.
func DecodeBody(r io.Reader) (interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return body, nil
}
