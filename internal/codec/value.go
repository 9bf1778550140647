// Package codec encodes typed row values to and from the byte formats
// used by table heaps and secondary indexes: tagged row payloads, single-
// and multi-column index keys, and hash-bucket entries for disambiguating
// index key collisions.
package codec

// Kind tags the dynamic type carried by a Value, mirroring the engine's
// NULL|INT|REAL|TEXT value domain.
type Kind byte

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Value is a single typed cell. Only the field matching Kind is
// meaningful; the others are left at their zero value.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
}

func Null() Value          { return Value{Kind: KindNull} }
func Int(v int64) Value    { return Value{Kind: KindInt, I: v} }
func Real(v float64) Value { return Value{Kind: KindReal, F: v} }
func Text(v string) Value  { return Value{Kind: KindText, S: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }
