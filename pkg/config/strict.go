package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/panbanda/connascence/pkg/models"
)

// keySet describes the option paths a struct accepts.
type keySet struct {
	leaves   map[string]bool
	sections map[string]bool
	// open paths are maps whose sub-keys are checked by validation instead
	open []string
}

func collectKeys(t reflect.Type, prefix string, ks *keySet) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		switch f.Type.Kind() {
		case reflect.Struct:
			ks.sections[path] = true
			collectKeys(f.Type, path, ks)
		case reflect.Map:
			ks.leaves[path] = true
			ks.open = append(ks.open, path+".")
		default:
			ks.leaves[path] = true
		}
	}
}

// checkKeys rejects any loaded key that does not map to a field of t.
func checkKeys(k *koanf.Koanf, t reflect.Type, prefix string) error {
	ks := &keySet{leaves: map[string]bool{}, sections: map[string]bool{}}
	collectKeys(t, prefix, ks)

	for _, key := range k.Keys() {
		if ks.leaves[key] {
			continue
		}
		if ks.sections[key] {
			return &ConfigurationError{Key: key, Reason: "expected a section, got a value"}
		}
		if hasOpenPrefix(key, ks.open) {
			continue
		}
		return &ConfigurationError{Key: key, Reason: "unknown option"}
	}
	return nil
}

func hasOpenPrefix(key string, open []string) bool {
	for _, p := range open {
		if strings.HasPrefix(key, p) && !strings.Contains(key[len(p):], ".") {
			return true
		}
	}
	return false
}

// clearOverriddenSlices empties slice fields the loaded config sets, so the
// loaded list replaces the default instead of being decoded over it.
func clearOverriddenSlices(k *koanf.Koanf, v reflect.Value, prefix string) {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			clearOverriddenSlices(k, fv, path)
		case reflect.Slice:
			if k.Exists(path) {
				fv.Set(reflect.Zero(f.Type))
			}
		}
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("rulekind", func(fl validator.FieldLevel) bool {
			kind := models.RuleKind(fl.Field().String())
			for _, known := range models.AllRuleKinds() {
				if kind == known {
					return true
				}
			}
			return false
		})
	})
	return validate
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Reason: "validation failed", Err: err}
	}
	fe := verrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	constraint := fe.Tag()
	if fe.Param() != "" {
		constraint += "=" + fe.Param()
	}
	return &ConfigurationError{
		Key:    key,
		Reason: fmt.Sprintf("value %v violates %s", fe.Value(), constraint),
	}
}
