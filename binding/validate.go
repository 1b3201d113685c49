package binding

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports struct fields that failed their `validate` tags.
type ValidationError struct {
	// Fields lists the failing fields as "<key>: <tag>" pairs.
	Fields []string
	// Err is the underlying validator error.
	Err error
}

func (e *ValidationError) Error() string {
	return "binding: validation failed: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	validatorsMu sync.Mutex
	validators   = map[string]*validator.Validate{}
)

// validatorFor returns a validator that reports field names using the given
// struct tag, so errors name the same keys the client sent.
func validatorFor(tag string) *validator.Validate {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()

	if v, ok := validators[tag]; ok {
		return v
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get(tag)
		if i := strings.IndexByte(name, ','); i >= 0 {
			name = name[:i]
		}
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	validators[tag] = v

	return v
}

// Validate runs `validate` struct tags on v, naming fields by tag.
// Values that are not structs or struct pointers are accepted as is.
func Validate(v any, tag string) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := validatorFor(tag).Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []string{err.Error()}, Err: err}
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+": "+fe.Tag())
	}

	return &ValidationError{Fields: fields, Err: err}
}

// DecodeAndValidate decodes values into target and validates the result.
func DecodeAndValidate(values map[string][]string, target any, tag string) error {
	if err := Decode(values, target, tag); err != nil {
		return err
	}

	return Validate(target, tag)
}
