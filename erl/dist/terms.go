package dist

import (
	"fmt"
	"reflect"
	"sync"
)

var (
	termsMx   sync.RWMutex
	termNames = make(map[reflect.Type]string)
	termTypes = make(map[string]reflect.Type)
)

// RegisterTerm makes values of type T arrive on other nodes as T instead of
// the codec's untyped form. Both nodes must register T under the same [name].
// Strings, numbers, slices and maps of those need no registration.
func RegisterTerm[T any](name string) error {
	t := reflect.TypeFor[T]()
	termsMx.Lock()
	defer termsMx.Unlock()
	if existing, ok := termTypes[name]; ok && existing != t {
		return fmt.Errorf("dist: term name %q already registered for %v", name, existing)
	}
	termTypes[name] = t
	termNames[t] = name
	return nil
}

func termName(v any) string {
	if v == nil {
		return ""
	}
	termsMx.RLock()
	defer termsMx.RUnlock()
	return termNames[reflect.TypeOf(v)]
}

func termType(name string) (reflect.Type, bool) {
	termsMx.RLock()
	defer termsMx.RUnlock()
	t, ok := termTypes[name]
	return t, ok
}
