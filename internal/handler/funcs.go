package handler

import (
	"fmt"
	"html/template"
	"reflect"
	"strings"

	"github.com/hitoshi/emerald/internal/security"
)

// displayNamer は表示名を持つ値。
type displayNamer interface {
	DisplayName() string
}

// templateFuncs はテンプレート関数を返す。
func templateFuncs(sanitizer security.BioSanitizer) template.FuncMap {
	return template.FuncMap{
		"displayName":    displayName,
		"defaultIfUnset": defaultIfUnset,
		"startsWith":     strings.HasPrefix,
		"iStartsWith":    iStartsWith,
		"itemType":       itemType,
		"bio":            sanitizer.Sanitize,
	}
}

// displayName は値がDisplayNameを持てばその結果を、なければ文字列表現を返す。
func displayName(v any) string {
	if d, ok := v.(displayNamer); ok && !isNil(v) {
		return d.DisplayName()
	}
	return fmt.Sprint(v)
}

// defaultIfUnset は値がゼロ値の場合にdefを返す。
// パイプラインで使うため、既定値が先の引数になる。
//
//	{{ .User.Email | defaultIfUnset "未設定" }}
func defaultIfUnset(def, v any) any {
	if v == nil || isNil(v) {
		return def
	}
	rv := reflect.ValueOf(v)
	if rv.IsZero() {
		return def
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		if rv.Len() == 0 {
			return def
		}
	}
	return v
}

// iStartsWith は大文字小文字を区別せずに前方一致を判定する。
func iStartsWith(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

// itemType は値の型名を返す。ポインタは指す先の型名を返す。
func itemType(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
