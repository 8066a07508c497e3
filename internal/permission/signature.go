package permission

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// maxSignatureDepth bounds nesting so cyclic parameter values terminate.
const maxSignatureDepth = 16

// Signature returns a stable identity for an action: its name plus every
// parameter rendered with sorted keys. Any value renders, including NaN and
// values JSON cannot encode, so two actions never share a signature just
// because their parameters failed to encode.
func Signature(name string, params map[string]any) string {
	if len(params) == 0 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte(':')
	writeValue(&sb, reflect.ValueOf(params), 0)
	return sb.String()
}

func writeValue(sb *strings.Builder, v reflect.Value, depth int) {
	if depth > maxSignatureDepth {
		sb.WriteString("<deep>")
		return
	}
	if !v.IsValid() {
		sb.WriteString("null")
		return
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			sb.WriteString("null")
			return
		}
		writeValue(sb, v.Elem(), depth+1)

	case reflect.String:
		sb.WriteString(strconv.Quote(v.String()))

	case reflect.Float32, reflect.Float64:
		sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))

	case reflect.Map:
		type entry struct {
			key string
			val reflect.Value
		}
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
		}
		slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

		sb.WriteByte('{')
		for i, e := range entries {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(e.key))
			sb.WriteByte('=')
			writeValue(sb, e.val, depth+1)
		}
		sb.WriteByte('}')

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			sb.WriteString("null")
			return
		}
		sb.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeValue(sb, v.Index(i), depth+1)
		}
		sb.WriteByte(']')

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		sb.WriteString("<" + v.Kind().String() + ">")

	default:
		fmt.Fprint(sb, v.Interface())
	}
}
