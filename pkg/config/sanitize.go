package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldReset records a field that failed validation and was replaced by its default.
type FieldReset struct {
	Field   string      `json:"field"`
	Rule    string      `json:"rule"`
	Value   interface{} `json:"value"`
	Default interface{} `json:"default"`
}

func (r FieldReset) String() string {
	return fmt.Sprintf("%s=%v failed %q, using default %v", r.Field, r.Value, r.Rule, r.Default)
}

var sanitizer = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Sanitize validates target and resets every failing field to its value in
// def. A failing map entry resets the whole map. target must be a pointer to
// a struct of the same type as def.
func Sanitize(target interface{}, def interface{}) ([]FieldReset, error) {
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Ptr || tv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("sanitize: target must be a pointer to struct, got %T", target)
	}
	dv := reflect.Indirect(reflect.ValueOf(def))
	if dv.Type() != tv.Elem().Type() {
		return nil, fmt.Errorf("sanitize: default is %s, want %s", dv.Type(), tv.Elem().Type())
	}

	err := sanitizer.Struct(target)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	var resets []FieldReset
	seen := make(map[string]bool)
	for _, fe := range verrs {
		path := fieldPath(fe.StructNamespace())
		key := strings.Join(path, ".")
		if seen[key] {
			continue
		}
		seen[key] = true

		cur, ok := lookup(tv.Elem(), path)
		if !ok || !cur.CanSet() {
			continue
		}
		want, _ := lookup(dv, path)
		resets = append(resets, FieldReset{
			Field:   displayName(fe.Namespace()),
			Rule:    fe.Tag(),
			Value:   fe.Value(),
			Default: want.Interface(),
		})
		cur.Set(want)
	}
	return resets, nil
}

// fieldPath turns "StrategyConfig.Confirmation.Weights[sweep]" into
// [Confirmation Weights], dropping the root and any map or slice index.
func fieldPath(ns string) []string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if j := strings.IndexByte(p, '['); j >= 0 {
			return append(parts[:i], p[:j])
		}
	}
	return parts
}

func displayName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if j := strings.IndexByte(ns, '['); j >= 0 {
		ns = ns[:j]
	}
	return ns
}

func lookup(v reflect.Value, path []string) (reflect.Value, bool) {
	for _, name := range path {
		v = reflect.Indirect(v)
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, false
		}
		v = v.FieldByName(name)
		if !v.IsValid() {
			return reflect.Value{}, false
		}
	}
	return v, true
}
