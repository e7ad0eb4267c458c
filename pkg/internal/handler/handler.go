// Package handler provides reflection-based invocation of typed command functions.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	argsMapType = reflect.TypeOf(map[string]any(nil))
)

// Handler holds metadata about a typed command function.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasContext bool
	HasResult  bool
}

// NewHandler creates a Handler from a function.
// Accepted shapes are func([ctx context.Context,] args T) error and
// func([ctx context.Context,] args T) (R, error). A lone context argument is
// also accepted for commands that take no arguments.
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}
	if fnVal.IsNil() {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()
	handler := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, fmt.Errorf("handler must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(contextType) {
		handler.HasContext = true
		argIdx = 1
	}
	if numIn == 2 && !handler.HasContext {
		return nil, fmt.Errorf("first of two arguments must be context.Context")
	}
	if argIdx < numIn {
		handler.ArgsType = fnType.In(argIdx)
	}

	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errorType) {
			return nil, fmt.Errorf("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("handler must return (T, error)")
		}
		handler.HasResult = true
	default:
		return nil, fmt.Errorf("handler must return error or (T, error)")
	}

	return handler, nil
}

// Execute decodes args into the function's argument type, calls it and
// returns its result. Args are converted through JSON unless the function
// takes map[string]any directly.
func (h *Handler) Execute(ctx context.Context, args map[string]any) (any, error) {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return nil, fmt.Errorf("handler function is nil or invalid")
	}

	var in []reflect.Value
	if h.HasContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	if h.ArgsType != nil {
		argVal, err := decodeArgs(h.ArgsType, args)
		if err != nil {
			return nil, err
		}
		in = append(in, argVal)
	}

	out := h.Fn.Call(in)

	errVal := out[len(out)-1]
	if !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	if h.HasResult {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func decodeArgs(t reflect.Type, args map[string]any) (reflect.Value, error) {
	if t == argsMapType {
		if args == nil {
			args = map[string]any{}
		}
		return reflect.ValueOf(args), nil
	}

	ptr := reflect.New(t)
	if len(args) == 0 {
		return ptr.Elem(), nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return ptr.Elem(), nil
}
