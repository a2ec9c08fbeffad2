// Package register collects setup hooks under a key. Store implementations
// add themselves from init and the provider resolves them once connected.
package register

import "sync"

type funcRegister struct {
	handlers map[any][]any
	locker   sync.RWMutex
}

var fr = &funcRegister{
	handlers: make(map[any][]any),
}

type Handler[T any] func(T)

func RegisterFunc[T any](key any, handler Handler[T]) {
	fr.locker.Lock()
	fr.handlers[key] = append(fr.handlers[key], handler)
	fr.locker.Unlock()
}

// ResolveFuncHandlers returns the handlers registered for key whose
// argument type is T, in registration order.
func ResolveFuncHandlers[T any](key any) []Handler[T] {
	fr.locker.RLock()
	defer fr.locker.RUnlock()

	var result []Handler[T]
	for _, v := range fr.handlers[key] {
		if h, ok := v.(Handler[T]); ok {
			result = append(result, h)
		}
	}
	return result
}

// Apply runs every handler registered for key against target.
func Apply[T any](key any, target T) int {
	handlers := ResolveFuncHandlers[T](key)
	for _, h := range handlers {
		h(target)
	}
	return len(handlers)
}
