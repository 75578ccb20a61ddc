package ufdr

import "encoding/json"

// MarshalJSON renders a field as {"name": ..., "value": ...} so the
// structured snapshot preserves field order and nesting.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string     `json:"name"`
		Value FieldValue `json:"value"`
	}{f.Name, f.Value})
}

// MarshalJSON renders a scalar as a JSON string and a structured value as an
// ordered array of its child fields.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Kind == ScalarValue {
		return json.Marshal(v.Scalar)
	}
	if v.Children == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Children)
}

func marshalFields(fields []Field) ([]byte, error) {
	if fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(fields)
}
