package proxy

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/engine"
	"github.com/wippyai/wasm-scripthost/errors"
)

// Handle is the part of a wasm instance the proxy uses. wazero's
// api.Module and isolation.Object satisfy it.
type Handle interface {
	ExportedFunction(name string) api.Function
	ExportedFunctionDefinitions() map[string]api.FunctionDefinition
	ExportedGlobal(name string) api.Global
	Memory() api.Memory
}

const (
	getterPrefix = "get_"
	setterPrefix = "set_"
)

type Option func(*Proxy)

func WithLogger(l *zap.Logger) Option {
	return func(p *Proxy) { p.log = l }
}

// WithWIT declares member signatures in WIT function syntax. Members
// without a declaration are called by their core signature.
func WithWIT(text string) Option {
	return func(p *Proxy) { p.wit = text }
}

type Proxy struct {
	h    Handle
	log  *zap.Logger
	defs map[string]api.FunctionDefinition
	sigs map[string]*signature
	wit  string
}

// New wraps h. The export list is read once here.
func New(h Handle, opts ...Option) *Proxy {
	p := &Proxy{h: h}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = Logger()
	}
	if h != nil {
		p.defs = h.ExportedFunctionDefinitions()
	}
	if p.wit != "" {
		sigs, err := parseWitFunctions(p.wit)
		if err != nil {
			p.log.Warn("ignoring member signatures", zap.Error(err))
		} else {
			p.sigs = sigs
		}
	}
	return p
}

// Call invokes method name. Failures are logged and yield nil.
func (p *Proxy) Call(ctx context.Context, name string, args ...any) any {
	v, err := p.TryCall(ctx, name, args...)
	if err != nil {
		p.warn("call", name, err)
		return nil
	}
	return v
}

// Get reads field or property name. Failures are logged and yield nil.
func (p *Proxy) Get(ctx context.Context, name string) any {
	v, err := p.TryGet(ctx, name)
	if err != nil {
		p.warn("get", name, err)
		return nil
	}
	return v
}

// Set writes field or property name. Failures are logged and leave the
// instance unchanged.
func (p *Proxy) Set(ctx context.Context, name string, value any) {
	if err := p.TrySet(ctx, name, value); err != nil {
		p.warn("set", name, err)
	}
}

func (p *Proxy) TryCall(ctx context.Context, name string, args ...any) (any, error) {
	return p.call(ctx, name, args, false)
}

func (p *Proxy) TryGet(ctx context.Context, name string) (any, error) {
	return p.get(ctx, name, false)
}

// TryCallString invokes method name and decodes its result as a string.
func (p *Proxy) TryCallString(ctx context.Context, name string, args ...any) (string, error) {
	v, err := p.call(ctx, name, args, true)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// TryGetString reads property name as a string.
func (p *Proxy) TryGetString(ctx context.Context, name string) (string, error) {
	v, err := p.get(ctx, name, true)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (p *Proxy) TrySet(ctx context.Context, name string, value any) (err error) {
	defer recoverInto(name, &err)
	if p.h == nil {
		return errors.NotInitialized(errors.PhaseProxy, "proxy handle")
	}

	if g := p.h.ExportedGlobal(name); g != nil {
		mg, ok := g.(api.MutableGlobal)
		if !ok {
			return errors.New(errors.PhaseProxy, errors.KindInvalidInput).
				Path(name).
				Detail("field is immutable").
				Build()
		}
		raw, err := encodeValue(value, g.Type())
		if err != nil {
			return withPath(err, name)
		}
		mg.Set(raw)
		return nil
	}

	if _, ok := p.defs[setterPrefix+name]; ok {
		_, err := p.invoke(ctx, setterPrefix+name, []any{value}, false)
		return err
	}
	return errors.NotFound(errors.PhaseProxy, "member", name)
}

func (p *Proxy) call(ctx context.Context, name string, args []any, wantString bool) (v any, err error) {
	defer recoverInto(name, &err)
	if p.h == nil {
		return nil, errors.NotInitialized(errors.PhaseProxy, "proxy handle")
	}
	if strings.HasPrefix(name, getterPrefix) || strings.HasPrefix(name, setterPrefix) {
		if _, ok := p.defs[name]; ok {
			return nil, errors.New(errors.PhaseProxy, errors.KindInvalidInput).
				Path(name).
				Detail("accessor is not a method; use Get or Set").
				Build()
		}
	}
	return p.invoke(ctx, name, args, wantString)
}

func (p *Proxy) get(ctx context.Context, name string, wantString bool) (v any, err error) {
	defer recoverInto(name, &err)
	if p.h == nil {
		return nil, errors.NotInitialized(errors.PhaseProxy, "proxy handle")
	}

	if g := p.h.ExportedGlobal(name); g != nil {
		if wantString {
			return nil, errors.TypeMismatch(errors.PhaseProxy, []string{name}, "string", api.ValueTypeName(g.Type()))
		}
		return coreValue(g.Get(), g.Type()), nil
	}
	if _, ok := p.defs[getterPrefix+name]; ok {
		return p.invoke(ctx, getterPrefix+name, nil, wantString)
	}
	return nil, errors.NotFound(errors.PhaseProxy, "member", name)
}

// invoke resolves export name, lowers args onto its core signature, runs
// it and lifts the results.
func (p *Proxy) invoke(ctx context.Context, name string, args []any, wantString bool) (any, error) {
	fn := p.h.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseProxy, "method", name)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	sig := p.sigs[name]

	stack, err := p.lower(ctx, name, params, sig, args)
	if err != nil {
		return nil, err
	}
	for len(stack) < len(results) {
		stack = append(stack, 0)
	}
	if err := fn.CallWithStack(ctx, stack); err != nil {
		return nil, errors.Invocation(name, err)
	}
	return p.lift(name, results, stack[:len(results)], sig, wantString)
}

func (p *Proxy) lower(ctx context.Context, name string, params []api.ValueType, sig *signature, args []any) ([]uint64, error) {
	if sig != nil && len(sig.params) != len(args) {
		return nil, arity(name, len(sig.params), len(args))
	}

	stack := make([]uint64, 0, len(params))
	for i, arg := range args {
		str, isStr := arg.(string)
		if sig != nil {
			if isString(sig.params[i]) != isStr {
				return nil, errors.TypeMismatch(errors.PhaseProxy, []string{name, fmt.Sprintf("arg%d", i)},
					fmt.Sprintf("%T", arg), witName(sig.params[i]))
			}
		}

		if isStr {
			n := len(stack)
			if n+1 >= len(params) || params[n] != api.ValueTypeI32 || params[n+1] != api.ValueTypeI32 {
				return nil, errors.TypeMismatch(errors.PhaseProxy, []string{name, fmt.Sprintf("arg%d", i)},
					"string", "(i32, i32)")
			}
			ptr, size, err := p.writeString(ctx, str)
			if err != nil {
				return nil, withPath(err, name)
			}
			stack = append(stack, api.EncodeU32(ptr), api.EncodeU32(size))
			continue
		}

		if len(stack) >= len(params) {
			return nil, arity(name, len(params), len(args))
		}
		raw, err := encodeValue(arg, params[len(stack)])
		if err != nil {
			return nil, withPath(err, name, fmt.Sprintf("arg%d", i))
		}
		stack = append(stack, raw)
	}

	if len(stack) != len(params) {
		return nil, arity(name, len(params), len(args))
	}
	return stack, nil
}

func (p *Proxy) lift(name string, types []api.ValueType, raw []uint64, sig *signature, wantString bool) (any, error) {
	if sig != nil && len(sig.results) == 1 && isString(sig.results[0]) {
		wantString = true
	}
	if wantString {
		s, err := p.readString(types, raw)
		if err != nil {
			return nil, withPath(err, name)
		}
		return s, nil
	}

	if sig != nil && len(sig.results) == len(raw) {
		out := make([]any, len(raw))
		for i, t := range sig.results {
			out[i] = witValue(raw[i], t)
		}
		return single(out), nil
	}

	out := make([]any, len(raw))
	for i, t := range types {
		out[i] = coreValue(raw[i], t)
	}
	return single(out), nil
}

func single(vs []any) any {
	switch len(vs) {
	case 0:
		return nil
	case 1:
		return vs[0]
	}
	return vs
}

func (p *Proxy) writeString(ctx context.Context, s string) (uint32, uint32, error) {
	size, err := safecast.Conv[uint32](len(s))
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseProxy, errors.KindInvalidInput, err, "string too long")
	}
	if size == 0 {
		return 0, 0, nil
	}
	mem := p.h.Memory()
	if mem == nil {
		return 0, 0, errors.NotInitialized(errors.PhaseProxy, "guest memory")
	}
	alloc := engine.FindAllocator(p.h)
	if alloc == nil {
		return 0, 0, errors.New(errors.PhaseProxy, errors.KindAllocation).
			Detail("module exports no allocator (cabi_realloc or alloc)").
			Build()
	}
	ptr, err := alloc.Alloc(ctx, size, 1)
	if err != nil {
		e := errors.AllocationFailed(errors.PhaseProxy, size, 1)
		e.Cause = err
		return 0, 0, e
	}
	if !mem.WriteString(ptr, s) {
		return 0, 0, errors.OutOfBounds(errors.PhaseProxy, ptr, size)
	}
	return ptr, size, nil
}

// readString decodes a string result: (ptr, len) or a single retptr.
func (p *Proxy) readString(types []api.ValueType, raw []uint64) (string, error) {
	var ptr, size uint32
	switch {
	case len(types) == 2 && types[0] == api.ValueTypeI32 && types[1] == api.ValueTypeI32:
		ptr, size = api.DecodeU32(raw[0]), api.DecodeU32(raw[1])
	case len(types) == 1 && types[0] == api.ValueTypeI32:
		mem := p.h.Memory()
		if mem == nil {
			return "", errors.NotInitialized(errors.PhaseProxy, "guest memory")
		}
		ret := api.DecodeU32(raw[0])
		var ok1, ok2 bool
		ptr, ok1 = mem.ReadUint32Le(ret)
		size, ok2 = mem.ReadUint32Le(ret + 4)
		if !ok1 || !ok2 {
			return "", errors.OutOfBounds(errors.PhaseProxy, ret, 8)
		}
	default:
		return "", errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
			GoType("string").
			Detail("results %v cannot hold a string", typeNames(types)).
			Build()
	}

	if size == 0 {
		return "", nil
	}
	mem := p.h.Memory()
	if mem == nil {
		return "", errors.NotInitialized(errors.PhaseProxy, "guest memory")
	}
	b, ok := mem.Read(ptr, size)
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseProxy, ptr, size)
	}
	return string(b), nil
}

func typeNames(ts []api.ValueType) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

func arity(name string, want, got int) error {
	return errors.New(errors.PhaseProxy, errors.KindInvalidInput).
		Path(name).
		Detail("expects %d argument value(s), got %d", want, got).
		Build()
}

// withPath prefixes the member path of a structured error.
func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = path
	}
	return err
}

func recoverInto(name string, err *error) {
	if r := recover(); r != nil {
		*err = errors.New(errors.PhaseProxy, errors.KindInvocation).
			Path(name).
			Detail("panic: %v", r).
			Build()
	}
}

func (p *Proxy) warn(op, name string, err error) {
	p.log.Warn("member access failed",
		zap.String("op", op),
		zap.String("member", name),
		zap.Error(err))
}

// MemberKind classifies a member.
type MemberKind int

const (
	Method MemberKind = iota
	Field
	Property
)

func (k MemberKind) String() string {
	switch k {
	case Method:
		return "method"
	case Field:
		return "field"
	case Property:
		return "property"
	}
	return "unknown"
}

type Member struct {
	Name     string
	Kind     MemberKind
	Params   []api.ValueType
	Results  []api.ValueType
	Readable bool
	Writable bool
}

// Members lists methods and properties, sorted by name. Fields cannot be
// enumerated through an instance; Has finds them.
func (p *Proxy) Members() []Member {
	props := map[string]*Member{}
	var out []Member
	for name, def := range p.defs {
		if engine.IsAllocator(name) {
			continue
		}
		switch {
		case strings.HasPrefix(name, getterPrefix) && len(name) > len(getterPrefix):
			m := property(props, name[len(getterPrefix):])
			m.Readable = true
			m.Results = def.ResultTypes()
		case strings.HasPrefix(name, setterPrefix) && len(name) > len(setterPrefix):
			m := property(props, name[len(setterPrefix):])
			m.Writable = true
			m.Params = def.ParamTypes()
		default:
			out = append(out, Member{
				Name:    name,
				Kind:    Method,
				Params:  def.ParamTypes(),
				Results: def.ResultTypes(),
			})
		}
	}
	for _, m := range props {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func property(props map[string]*Member, name string) *Member {
	m, ok := props[name]
	if !ok {
		m = &Member{Name: name, Kind: Property}
		props[name] = m
	}
	return m
}

// Has reports whether name is a method, field or property.
func (p *Proxy) Has(name string) bool {
	if p.h == nil {
		return false
	}
	if _, ok := p.defs[name]; ok {
		return true
	}
	if p.h.ExportedGlobal(name) != nil {
		return true
	}
	_, get := p.defs[getterPrefix+name]
	_, set := p.defs[setterPrefix+name]
	return get || set
}

// Call invokes method name and converts the result to T. A T of kind
// string decodes the result as a string. Failures are logged and yield
// the zero value.
func Call[T any](ctx context.Context, p *Proxy, name string, args ...any) T {
	v, err := p.call(ctx, name, args, kindOf[T]() == reflect.String)
	if err != nil {
		p.warn("call", name, err)
		var zero T
		return zero
	}
	return to[T](p, "call", name, v)
}

// Get reads field or property name as T. Failures are logged and yield
// the zero value.
func Get[T any](ctx context.Context, p *Proxy, name string) T {
	v, err := p.get(ctx, name, kindOf[T]() == reflect.String)
	if err != nil {
		p.warn("get", name, err)
		var zero T
		return zero
	}
	return to[T](p, "get", name, v)
}

func to[T any](p *Proxy, op, name string, v any) T {
	out, err := convert[T](v)
	if err != nil {
		p.warn(op, name, withPath(err, name))
	}
	return out
}

func kindOf[T any]() reflect.Kind {
	return reflect.TypeOf((*T)(nil)).Elem().Kind()
}
