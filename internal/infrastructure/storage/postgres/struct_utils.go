package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tagged columns of T, flattening embedded
// structs such as entity.Document. Repositories call it once at construction.
//
//	cols := ExtractDBColumns[sales_order.SalesOrder]()
//	// ["id", "deletion_mark", "version", ..., "customer_ref", "status", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	return columnsOf(reflect.TypeOf(zero))
}

func columnsOf(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			cols = append(cols, columnsOf(field.Type)...)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}

type taggedField struct {
	index  int
	column string
}

// structLayout is the cached reflection result for one struct type.
type structLayout struct {
	fields   []taggedField
	embedded []int
}

var layouts sync.Map // reflect.Type -> *structLayout

func layoutOf(t reflect.Type) *structLayout {
	if cached, ok := layouts.Load(t); ok {
		return cached.(*structLayout)
	}

	layout := &structLayout{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			layout.embedded = append(layout.embedded, i)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		layout.fields = append(layout.fields, taggedField{index: i, column: tag})
	}

	actual, _ := layouts.LoadOrStore(t, layout)
	return actual.(*structLayout)
}

// StructToMap converts a struct (or pointer to one) into column -> value
// using "db" tags. Untagged and "-" fields are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	layout := layoutOf(rv.Type())
	res := make(map[string]any, len(layout.fields))
	for _, f := range layout.fields {
		res[f.column] = rv.Field(f.index).Interface()
	}
	for _, idx := range layout.embedded {
		for k, val := range StructToMap(rv.Field(idx).Interface()) {
			res[k] = val
		}
	}
	return res
}
