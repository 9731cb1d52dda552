package interpolation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// TagName is the struct tag marking fields for interpolation.
const TagName = "env_interpolation"

// InterpolateStruct expands environment variables in the fields of the struct
// pointed to by v that are tagged `env_interpolation:"yes"`. Tagged fields may
// be strings, string slices, string maps, structs, struct pointers or slices
// of either; nested structs are walked by their own tags.
func InterpolateStruct(v any) error {
	if v == nil {
		return nil
	}
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("expected pointer to struct, got %T", v)
	}
	if val.IsNil() {
		return nil
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", v)
	}
	return interpolateFields(val)
}

func interpolateFields(val reflect.Value) error {
	typ := val.Type()
	var errs []error
	for i := range val.NumField() {
		field := val.Field(i)
		sf := typ.Field(i)
		if !field.CanSet() || !strings.EqualFold(sf.Tag.Get(TagName), "yes") {
			continue
		}
		if err := interpolateValue(field); err != nil {
			errs = append(errs, fmt.Errorf("field %s%w", sf.Name, err))
		}
	}
	return errors.Join(errs...)
}

// interpolateValue errors are prefixed with the path below the field, so the
// caller can prepend the field name.
func interpolateValue(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return nil
		}
		expanded, err := ExpandEnvVars(v.String())
		if err != nil {
			return fmt.Errorf(": %w", err)
		}
		v.SetString(expanded)

	case reflect.Struct:
		if err := interpolateFields(v); err != nil {
			return fmt.Errorf(": %w", err)
		}

	case reflect.Ptr:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil
		}
		return interpolateValue(v.Elem())

	case reflect.Slice:
		var errs []error
		for j := range v.Len() {
			if err := interpolateValue(v.Index(j)); err != nil {
				errs = append(errs, fmt.Errorf("[%d]%w", j, err))
			}
		}
		return errors.Join(errs...)

	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String || v.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var errs []error
		iter := v.MapRange()
		for iter.Next() {
			expanded, err := ExpandEnvVars(iter.Value().String())
			if err != nil {
				errs = append(errs, fmt.Errorf("[%s]: %w", iter.Key().String(), err))
				continue
			}
			v.SetMapIndex(iter.Key(), reflect.ValueOf(expanded).Convert(v.Type().Elem()))
		}
		return errors.Join(errs...)
	}
	return nil
}
