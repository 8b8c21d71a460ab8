package processor

import (
	"fmt"
)

// hookOutcome 钩子调用结果：成功值、中止或被恢复的故障，三者互斥
type hookOutcome[T any] struct {
	value    T
	tripwire *TripWire
	fault    error
}

func (o hookOutcome[T]) ok() bool {
	return o.tripwire == nil && o.fault == nil
}

// invokeHook 调用钩子并把 panic 与错误分类
func invokeHook[T any](fn func() (T, error)) (out hookOutcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = hookOutcome[T]{value: zero, fault: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err := fn()
	if err == nil {
		return hookOutcome[T]{value: v}
	}
	if tw, ok := AsTripWire(err); ok {
		return hookOutcome[T]{tripwire: tw}
	}
	return hookOutcome[T]{fault: err}
}
