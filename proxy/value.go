package proxy

import (
	"reflect"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-scripthost/errors"
)

// encodeValue lowers a Go scalar into one core value of type t.
func encodeValue(v any, t api.ValueType) (uint64, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, errors.InvalidInput(errors.PhaseProxy, "nil argument")
	}

	switch k := rv.Kind(); {
	case k == reflect.Bool:
		if t != api.ValueTypeI32 {
			break
		}
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil

	case k >= reflect.Int && k <= reflect.Int64:
		return encodeInt(rv.Int(), t)

	case k >= reflect.Uint && k <= reflect.Uintptr:
		return encodeInt(rv.Uint(), t)

	case k == reflect.Float32 || k == reflect.Float64:
		return encodeFloat(rv.Float(), t)
	}

	return 0, errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
		GoType(rv.Type().String()).
		WitType(api.ValueTypeName(t)).
		Value(v).
		Build()
}

// encodeInt converts x to t, failing when the value does not fit. An i32
// accepts the range of both int32 and uint32.
func encodeInt[N int64 | uint64](x N, t api.ValueType) (uint64, error) {
	var (
		out uint64
		err error
	)
	switch t {
	case api.ValueTypeI32:
		if x < 0 {
			var v int32
			v, err = safecast.Conv[int32](x)
			out = api.EncodeI32(v)
		} else {
			var v uint32
			v, err = safecast.Conv[uint32](x)
			out = api.EncodeU32(v)
		}
	case api.ValueTypeI64:
		if x < 0 {
			var v int64
			v, err = safecast.Conv[int64](x)
			out = api.EncodeI64(v)
		} else {
			out, err = safecast.Conv[uint64](x)
		}
	case api.ValueTypeF32:
		out = api.EncodeF32(float32(x))
	case api.ValueTypeF64:
		out = api.EncodeF64(float64(x))
	default:
		return 0, unsupportedCore(t)
	}
	if err != nil {
		return 0, doesNotFit(x, t, err)
	}
	return out, nil
}

// encodeFloat converts x to t. Integer targets reject fractions.
func encodeFloat(x float64, t api.ValueType) (uint64, error) {
	var (
		out uint64
		err error
	)
	switch t {
	case api.ValueTypeI32:
		if x < 0 {
			var v int32
			v, err = safecast.Convert[int32](x)
			out = api.EncodeI32(v)
		} else {
			var v uint32
			v, err = safecast.Convert[uint32](x)
			out = api.EncodeU32(v)
		}
	case api.ValueTypeI64:
		var v int64
		v, err = safecast.Convert[int64](x)
		out = api.EncodeI64(v)
	case api.ValueTypeF32:
		out = api.EncodeF32(float32(x))
	case api.ValueTypeF64:
		out = api.EncodeF64(x)
	default:
		return 0, unsupportedCore(t)
	}
	if err != nil {
		return 0, doesNotFit(x, t, err)
	}
	return out, nil
}

func unsupportedCore(t api.ValueType) error {
	return errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
		WitType(api.ValueTypeName(t)).
		Detail("unsupported core type").
		Build()
}

func doesNotFit(x any, t api.ValueType, cause error) error {
	return errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
		WitType(api.ValueTypeName(t)).
		Value(x).
		Cause(cause).
		Detail("value %v does not fit", x).
		Build()
}

// coreValue decodes a raw core value by its type.
func coreValue(raw uint64, t api.ValueType) any {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(raw)
	case api.ValueTypeI64:
		return int64(raw)
	case api.ValueTypeF32:
		return api.DecodeF32(raw)
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	}
	return raw
}

// witValue decodes a raw core value as the WIT scalar t.
func witValue(raw uint64, t wit.Type) any {
	switch t.(type) {
	case wit.Bool:
		return uint32(raw) != 0
	case wit.S8:
		return int8(raw)
	case wit.U8:
		return uint8(raw)
	case wit.S16:
		return int16(raw)
	case wit.U16:
		return uint16(raw)
	case wit.S32:
		return api.DecodeI32(raw)
	case wit.U32:
		return api.DecodeU32(raw)
	case wit.Char:
		return rune(api.DecodeI32(raw))
	case wit.S64:
		return int64(raw)
	case wit.U64:
		return raw
	case wit.F32:
		return api.DecodeF32(raw)
	case wit.F64:
		return api.DecodeF64(raw)
	}
	return raw
}

func isNumeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uintptr) || k == reflect.Float32 || k == reflect.Float64
}

// convert adapts a decoded value to T. Numbers convert between each other
// and to bool (non-zero is true); strings only to string types.
func convert[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	rv := reflect.ValueOf(v)
	tt := reflect.TypeOf(&zero).Elem()
	switch from, to := rv.Kind(), tt.Kind(); {
	case isNumeric(from) && isNumeric(to),
		from == reflect.String && to == reflect.String,
		from == reflect.Bool && to == reflect.Bool:
		return rv.Convert(tt).Interface().(T), nil
	case isNumeric(from) && to == reflect.Bool:
		return reflect.ValueOf(!rv.IsZero()).Convert(tt).Interface().(T), nil
	}

	return zero, errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
		GoType(tt.String()).
		Value(v).
		Detail("cannot convert %T", v).
		Build()
}
