package extraction

import (
	"reflect"
	"strings"
)

var (
	stringPtrType   = reflect.TypeOf((*string)(nil))
	stringSliceType = reflect.TypeOf([]string(nil))
)

// Reconcile merges partials in page order into one record.
//
// A scalar takes the first non-blank value seen; later pages never overwrite it.
// A list is the ordered union of every page's items with exact-string dedup.
// Nil partials (failed pages) are skipped. Lists in the result are never nil.
func Reconcile(partials []*Partial) *Record {
	out := &Record{}
	dst := reflect.ValueOf(out).Elem()
	for _, p := range partials {
		if p == nil {
			continue
		}
		mergeValue(dst, reflect.ValueOf(p).Elem())
	}
	fillLists(dst)
	return out
}

// mergeValue walks dst and src in lockstep and applies the leaf rules
func mergeValue(dst, src reflect.Value) {
	switch dst.Type() {
	case stringPtrType:
		mergeScalar(dst.Addr().Interface().(**string), src.Interface().(*string))
		return
	case stringSliceType:
		merged := mergeList(dst.Interface().([]string), src.Interface().([]string))
		dst.Set(reflect.ValueOf(merged))
		return
	}

	if dst.Kind() == reflect.Struct {
		for i := 0; i < dst.NumField(); i++ {
			mergeValue(dst.Field(i), src.Field(i))
		}
	}
}

// mergeScalar sets *dst from src only while *dst is still unset
func mergeScalar(dst **string, src *string) {
	if *dst != nil {
		return
	}
	*dst = String(deref(src))
}

// mergeList appends items of src not already in dst, dropping blanks
func mergeList(dst, src []string) []string {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, item := range dst {
		seen[item] = struct{}{}
	}
	for _, item := range src {
		if strings.TrimSpace(item) == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

// fillLists replaces nil lists with empty ones so they serialize as []
func fillLists(v reflect.Value) {
	if v.Type() == stringSliceType {
		if v.IsNil() {
			v.Set(reflect.ValueOf([]string{}))
		}
		return
	}
	if v.Kind() == reflect.Struct {
		for i := 0; i < v.NumField(); i++ {
			fillLists(v.Field(i))
		}
	}
}
