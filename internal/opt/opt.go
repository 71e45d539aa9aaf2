// Package opt holds an explicit optional value used for parameters that may
// be left unset, such as a quality band or a climatology month.
package opt

import "fmt"

type Optional[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) IsSet() bool {
	return o.ok
}

func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "none"
	}
	return fmt.Sprint(o.value)
}
