package calllog

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// AbsentMarker is the snapshot of a nil value.
const AbsentMarker = "<nil>"

// Stringify renders v for a log record. It never fails:
//   - nil and typed nil values render as [AbsentMarker]
//   - errors render their Error() text and fmt.Stringers their String() text
//   - everything else is JSON encoded
//
// Values JSON cannot represent fall back to fmt's %v for scalar kinds
// (NaN, complex numbers) and to a "<type>" placeholder otherwise. A String,
// Error or MarshalJSON method that panics also yields the placeholder.
func Stringify(v any) (s string) {
	if isNil(v) {
		return AbsentMarker
	}
	defer func() {
		if recover() != nil {
			s = placeholder(v)
		}
	}()

	switch t := v.(type) {
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}

	out, err := sonic.ConfigStd.MarshalToString(v)
	if err == nil {
		return out
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v)
	}
	return placeholder(v)
}

// StringifyArgs renders each argument with fn, preserving count and order.
// A nil fn means [Stringify]. The result is never nil.
func StringifyArgs(args []any, fn func(any) string) []string {
	if fn == nil {
		fn = Stringify
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fn(a)
	}
	return out
}

// FormatArgs joins argument snapshots as "[a, b, c]". No arguments is "[]".
func FormatArgs(snapshots []string) string {
	return "[" + strings.Join(snapshots, ", ") + "]"
}

func placeholder(v any) string {
	return "<" + reflect.TypeOf(v).String() + ">"
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes truncated)", s[:cut], len(s)-cut)
}
