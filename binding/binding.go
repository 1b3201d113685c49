// Package binding decodes multi-valued string maps, such as captured path
// segments or parsed query strings, into tagged structs.
//
// Field names are taken from the struct tag passed to Decode (for example
// `query:"page"`). Fields without the tag use the Go field name unchanged.
// A tag value of "-" skips the field. Embedded structs are flattened.
//
// Supported field kinds are strings, booleans, signed and unsigned integers,
// floats, time.Duration, types implementing encoding.TextUnmarshaler, and
// slices or pointers of those. Scalar fields reject repeated keys. Integers
// are parsed as base 10 and must not be empty.
package binding

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// Tag names used by the mux extractors.
const (
	TagPath  = "path"
	TagQuery = "query"
)

var (
	// ErrInvalidTarget is returned when the decode target is not a non-nil
	// pointer to a struct.
	ErrInvalidTarget = errors.New("binding: target must be a non-nil pointer to a struct")

	// ErrMultipleValues is returned when a scalar field receives more than one value.
	ErrMultipleValues = errors.New("binding: expected a single value")

	// ErrUnsupportedType is returned for field kinds that cannot be decoded from strings.
	ErrUnsupportedType = errors.New("binding: unsupported field type")
)

// FieldError describes a failure to decode a single key.
type FieldError struct {
	// Key is the map key that failed.
	Key string
	// Field is the Go struct field name.
	Field string
	// Type is the field type.
	Type reflect.Type
	// Values are the raw values supplied for the key.
	Values []string
	// Err is the underlying conversion error.
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("binding: cannot decode key %q into %s (%s): %v", e.Key, e.Field, e.Type, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

type fieldInfo struct {
	key   string
	name  string
	index []int
}

type cacheKey struct {
	typ reflect.Type
	tag string
}

// fieldCache maps cacheKey to []fieldInfo. It is bounded by the number of
// distinct target types.
var fieldCache sync.Map

// Decode copies values into the struct pointed to by target.
// Keys absent from values leave their fields untouched.
func Decode(values map[string][]string, target any, tag string) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}

	el := v.Elem()
	for _, f := range structFields(el.Type(), tag) {
		vals, ok := values[f.key]
		if !ok {
			continue
		}

		fv := el.FieldByIndex(f.index)
		if err := setField(fv, vals); err != nil {
			return &FieldError{
				Key:    f.key,
				Field:  f.name,
				Type:   fv.Type(),
				Values: vals,
				Err:    err,
			}
		}
	}

	return nil
}

func structFields(t reflect.Type, tag string) []fieldInfo {
	key := cacheKey{typ: t, tag: tag}
	if cached, ok := fieldCache.Load(key); ok {
		return cached.([]fieldInfo)
	}

	fields := collectFields(t, tag, nil)
	actual, _ := fieldCache.LoadOrStore(key, fields)

	return actual.([]fieldInfo)
}

func collectFields(t reflect.Type, tag string, parent []int) []fieldInfo {
	var fields []fieldInfo

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int{}, parent...), i)

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get(tag) == "" {
			fields = append(fields, collectFields(sf.Type, tag, index)...)
			continue
		}

		if !sf.IsExported() {
			continue
		}

		name := sf.Tag.Get(tag)
		if name == "-" {
			continue
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			name = name[:i]
		}
		if name == "" {
			name = sf.Name
		}

		fields = append(fields, fieldInfo{key: name, name: sf.Name, index: index})
	}

	return fields
}

func setField(fv reflect.Value, vals []string) error {
	if fv.Kind() == reflect.Slice && !implementsText(fv.Type()) {
		out := reflect.MakeSlice(fv.Type(), len(vals), len(vals))
		for i, s := range vals {
			if err := setScalar(out.Index(i), s); err != nil {
				return err
			}
		}
		fv.Set(out)
		return nil
	}

	if len(vals) > 1 {
		return ErrMultipleValues
	}

	var s string
	if len(vals) == 1 {
		s = vals[0]
	}

	return setScalar(fv, s)
}

func implementsText(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(textUnmarshalerType)
}

func setScalar(fv reflect.Value, s string) error {
	if fv.Kind() == reflect.Pointer {
		nv := reflect.New(fv.Type().Elem())
		if err := setScalar(nv.Elem(), s); err != nil {
			return err
		}
		fv.Set(nv)
		return nil
	}

	if implementsText(fv.Type()) {
		return fv.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	if fv.Type() == reflect.TypeFor[time.Duration]() {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)

	case reflect.Bool:
		b, err := cast.ToBoolE(s)
		if err != nil {
			return err
		}
		fv.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer: %w", err)
		}
		fv.SetUint(n)

	case reflect.Float32, reflect.Float64:
		n, err := cast.ToFloat64E(s)
		if err != nil {
			return err
		}
		if fv.OverflowFloat(n) {
			return fmt.Errorf("value %q overflows %s", s, fv.Type())
		}
		fv.SetFloat(n)

	default:
		return ErrUnsupportedType
	}

	return nil
}
