package events

import "reflect"

// funcPtr returns the entry point of a func value so two Listener values
// obtained from the same function (e.g. a method value or closure literal
// stored once and reused) can be compared for Off.
func funcPtr(f Listener) uintptr {
	return reflect.ValueOf(f).Pointer()
}
