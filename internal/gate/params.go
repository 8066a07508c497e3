package gate

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxParamDepth  = 16
	maxParamLeaves = 4096
)

var errUnreadableParams = errors.New("parameters are nested too deeply or too large to inspect")

// matchTexts returns the strings the safety patterns are run against: the
// action name, then every parameter key and leaf value, each normalized.
// Values are read as they are, never through an encoding that escapes
// characters.
func (a Action) matchTexts() ([]string, error) {
	texts := []string{normalizeText(a.Name)}
	if len(a.Parameters) == 0 {
		return texts, nil
	}
	w := &leafWalker{texts: texts}
	if err := w.walk(reflect.ValueOf(a.Parameters), 0); err != nil {
		return nil, err
	}
	return w.texts, nil
}

type leafWalker struct {
	texts []string
}

func (w *leafWalker) add(s string) error {
	if len(w.texts) >= maxParamLeaves {
		return errUnreadableParams
	}
	if s = normalizeText(s); s != "" {
		w.texts = append(w.texts, s)
	}
	return nil
}

func (w *leafWalker) walk(v reflect.Value, depth int) error {
	if depth > maxParamDepth {
		return errUnreadableParams
	}
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem(), depth+1)

	case reflect.String:
		return w.add(v.String())

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := w.walk(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := w.walk(iter.Value(), depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return w.add(string(v.Bytes()))
		}
		for i := 0; i < v.Len(); i++ {
			if err := w.walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Float32, reflect.Float64:
		return w.add(strconv.FormatFloat(v.Float(), 'g', -1, 64))

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil

	default:
		return w.add(fmt.Sprint(v.Interface()))
	}
}

// normalizeText maps every space or control character to a plain space and
// drops invisible format characters, so separators hidden as tabs, NULs,
// no-break spaces or zero-width joiners still read as separators.
func normalizeText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r):
			return ' '
		case unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}
