package reviews

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RatioKind tags the variant held by a RatioValue.
type RatioKind uint8

const (
	RatioNumber RatioKind = iota + 1
	RatioText
	RatioRecord
)

// RatioValue is a closed union of number, string, or a record of nested
// values. No schema is imposed on what a ratio holds beyond that.
type RatioValue struct {
	Kind   RatioKind
	Number float64
	Text   string
	Record map[string]RatioValue
}

func Number(v float64) RatioValue { return RatioValue{Kind: RatioNumber, Number: v} }

func Text(v string) RatioValue { return RatioValue{Kind: RatioText, Text: v} }

func Record(fields map[string]RatioValue) RatioValue {
	if fields == nil {
		fields = map[string]RatioValue{}
	}
	return RatioValue{Kind: RatioRecord, Record: fields}
}

// Clone deep-copies nested records.
func (v RatioValue) Clone() RatioValue {
	if v.Kind != RatioRecord {
		return v
	}
	out := make(map[string]RatioValue, len(v.Record))
	for k, nested := range v.Record {
		out[k] = nested.Clone()
	}
	return RatioValue{Kind: RatioRecord, Record: out}
}

// Equal reports structural equality.
func (v RatioValue) Equal(o RatioValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case RatioNumber:
		return v.Number == o.Number
	case RatioText:
		return v.Text == o.Text
	case RatioRecord:
		if len(v.Record) != len(o.Record) {
			return false
		}
		for k, nested := range v.Record {
			other, ok := o.Record[k]
			if !ok || !nested.Equal(other) {
				return false
			}
		}
		return true
	}
	return true
}

func (v RatioValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case RatioNumber:
		return json.Marshal(v.Number)
	case RatioText:
		return json.Marshal(v.Text)
	case RatioRecord:
		if v.Record == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Record)
	}
	return nil, fmt.Errorf("ratio value has no kind")
}

func (v *RatioValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return invalidf("empty ratio value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
	case '{':
		var rec map[string]RatioValue
		if err := json.Unmarshal(b, &rec); err != nil {
			return err
		}
		*v = Record(rec)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = Number(n)
	default:
		return invalidf("ratio values must be a number, string or object, got %s", string(b))
	}
	return nil
}

// Ratios maps ratio names to values.
type Ratios map[string]RatioValue

func (r Ratios) Clone() Ratios {
	out := make(Ratios, len(r))
	for k, v := range r {
		out[k] = v.Clone()
	}
	return out
}

func (r Ratios) Equal(o Ratios) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		other, ok := o[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}
