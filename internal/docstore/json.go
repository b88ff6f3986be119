package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeObject unmarshals a payload into a generic object, treating empty as {}
func decodeObject(data []byte) (map[string]interface{}, error) {
	obj := map[string]interface{}{}
	if len(data) == 0 {
		return obj, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}

// MergeFields returns data with the given top-level fields overwritten
func MergeFields(data []byte, fields map[string]interface{}) ([]byte, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		obj[k] = v
	}
	return json.Marshal(obj)
}

// IncrementField returns data with delta added to a numeric top-level field
func IncrementField(data []byte, field string, delta int64) ([]byte, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	var current int64
	switch v := obj[field].(type) {
	case nil:
	case json.Number:
		if n, err := v.Int64(); err == nil {
			current = n
		} else if f, err := v.Float64(); err == nil {
			current = int64(f)
		} else {
			return nil, fmt.Errorf("field %q is not numeric", field)
		}
	default:
		return nil, fmt.Errorf("field %q is not numeric", field)
	}
	obj[field] = current + delta
	return json.Marshal(obj)
}

// Matches reports whether a document satisfies q's field filter
func Matches(doc Document, q Query) bool {
	if Collection(doc.Path) != q.Collection {
		return false
	}
	if q.Field == "" {
		return true
	}
	obj, err := decodeObject(doc.Data)
	if err != nil {
		return false
	}
	v, ok := obj[q.Field]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == q.Value
}
