package message

import "time"

// MetadataID is an interned metadata key. Zero is the invalid sentinel: it is
// never allocated by a registry and reading it from a message yields the
// Empty metadata.
type MetadataID uint32

// MetadataType tags the value variant carried by a Metadata entry.
type MetadataType uint8

const (
	MetadataEmpty MetadataType = iota
	MetadataInt64
	MetadataFloat64
	MetadataDuration
)

// MetadataValue is a closed sum over the four metadata variants. The zero
// value is the Empty variant.
type MetadataValue struct {
	typ   MetadataType
	i64   int64
	f64   float64
	secs  uint64
	nsecs uint32
}

// Metadata is one typed entry attached to a message, fixed-size and suitable
// for passing by value.
type Metadata struct {
	ID    MetadataID
	Value MetadataValue
}

// EmptyValue returns the Empty variant.
func EmptyValue() MetadataValue {
	return MetadataValue{}
}

// Int64Value wraps an int64.
func Int64Value(v int64) MetadataValue {
	return MetadataValue{typ: MetadataInt64, i64: v}
}

// Float64Value wraps a float64.
func Float64Value(v float64) MetadataValue {
	return MetadataValue{typ: MetadataFloat64, f64: v}
}

// DurationValue wraps a non-negative duration as whole seconds plus
// nanoseconds below one second.
func DurationValue(d time.Duration) MetadataValue {
	if d < 0 {
		d = 0
	}
	return MetadataValue{
		typ:   MetadataDuration,
		secs:  uint64(d / time.Second),
		nsecs: uint32(d % time.Second),
	}
}

// Type returns the variant tag.
func (v MetadataValue) Type() MetadataType {
	return v.typ
}

// Int64 returns the int64 payload; ok is false for other variants.
func (v MetadataValue) Int64() (int64, bool) {
	return v.i64, v.typ == MetadataInt64
}

// Float64 returns the float64 payload; ok is false for other variants.
func (v MetadataValue) Float64() (float64, bool) {
	return v.f64, v.typ == MetadataFloat64
}

// Duration returns the duration payload; ok is false for other variants.
func (v MetadataValue) Duration() (time.Duration, bool) {
	if v.typ != MetadataDuration {
		return 0, false
	}
	return time.Duration(v.secs)*time.Second + time.Duration(v.nsecs), true
}

// DurationParts exposes the raw seconds/nanoseconds split used at the
// external interface boundary. The nanoseconds part is always below 1e9.
func (v MetadataValue) DurationParts() (secs uint64, nsecs uint32, ok bool) {
	return v.secs, v.nsecs, v.typ == MetadataDuration
}

// IsEmpty reports whether the entry is the Empty sentinel.
func (m Metadata) IsEmpty() bool {
	return m.Value.typ == MetadataEmpty
}
