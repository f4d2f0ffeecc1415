package host

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/compiler"
	"github.com/wippyai/wasm-scripthost/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the wasm import module name.
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact function names
// when automatic PascalCase-to-kebab-case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

type Registry struct {
	funcs map[string]map[string]*Func
	mu    sync.RWMutex
}

// Func is one registered handler with its lowered core signature.
type Func struct {
	fn      reflect.Value
	params  []paramKind
	results []reflect.Kind
	sig     compiler.Signature
}

type paramKind struct {
	typ  reflect.Type
	kind reflect.Kind
	ctx  bool
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]map[string]*Func),
	}
}

func (r *Registry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.RegisterFunc(ns, name, handler); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		if err := r.RegisterFunc(ns, toKebabCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}

	f, err := newFunc(fn)
	if err != nil {
		return errors.Registration(errors.PhaseHost, namespace, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*Func)
	}
	r.funcs[namespace][name] = f
	return nil
}

func newFunc(fn any) (*Func, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(reflect.TypeOf(fn).String()).
			Detail("handler must be a function").
			Build()
	}
	t := rv.Type()
	f := &Func{fn: rv}

	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		if i == 0 && in == contextType {
			f.params = append(f.params, paramKind{ctx: true})
			continue
		}
		switch in.Kind() {
		case reflect.String:
			f.sig.Params = append(f.sig.Params, api.ValueTypeI32, api.ValueTypeI32)
		default:
			vt, ok := valueType(in.Kind())
			if !ok {
				return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
					GoType(in.String()).
					Detail("unsupported parameter %d", i).
					Build()
			}
			f.sig.Params = append(f.sig.Params, vt)
		}
		f.params = append(f.params, paramKind{typ: in, kind: in.Kind()})
	}

	for i := 0; i < t.NumOut(); i++ {
		out := t.Out(i)
		vt, ok := valueType(out.Kind())
		if !ok {
			return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				GoType(out.String()).
				Detail("unsupported result %d", i).
				Build()
		}
		f.sig.Results = append(f.sig.Results, vt)
		f.results = append(f.results, out.Kind())
	}
	return f, nil
}

func valueType(k reflect.Kind) (api.ValueType, bool) {
	switch k {
	case reflect.Int32, reflect.Uint32, reflect.Bool:
		return api.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, true
	case reflect.Float32:
		return api.ValueTypeF32, true
	case reflect.Float64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func (f *Func) Signature() compiler.Signature {
	return f.sig
}

func (f *Func) call(ctx context.Context, mod api.Module, stack []uint64) {
	in := make([]reflect.Value, 0, len(f.params))
	i := 0
	for _, p := range f.params {
		if p.ctx {
			in = append(in, reflect.ValueOf(ctx))
			continue
		}
		var v reflect.Value
		switch p.kind {
		case reflect.String:
			ptr, n := api.DecodeU32(stack[i]), api.DecodeU32(stack[i+1])
			i += 2
			mem := mod.Memory()
			if mem == nil {
				panic(errors.NotInitialized(errors.PhaseHost, "caller memory"))
			}
			b, ok := mem.Read(ptr, n)
			if !ok {
				panic(errors.OutOfBounds(errors.PhaseHost, ptr, n))
			}
			v = reflect.ValueOf(string(b))
		case reflect.Bool:
			v = reflect.ValueOf(api.DecodeI32(stack[i]) != 0)
			i++
		case reflect.Int32:
			v = reflect.ValueOf(api.DecodeI32(stack[i]))
			i++
		case reflect.Uint32:
			v = reflect.ValueOf(api.DecodeU32(stack[i]))
			i++
		case reflect.Int64:
			v = reflect.ValueOf(int64(stack[i]))
			i++
		case reflect.Uint64:
			v = reflect.ValueOf(stack[i])
			i++
		case reflect.Float32:
			v = reflect.ValueOf(api.DecodeF32(stack[i]))
			i++
		case reflect.Float64:
			v = reflect.ValueOf(api.DecodeF64(stack[i]))
			i++
		}
		in = append(in, v.Convert(p.typ))
	}

	for j, out := range f.fn.Call(in) {
		switch f.results[j] {
		case reflect.Bool:
			if out.Bool() {
				stack[j] = 1
			} else {
				stack[j] = 0
			}
		case reflect.Int32:
			stack[j] = api.EncodeI32(int32(out.Int()))
		case reflect.Uint32:
			stack[j] = api.EncodeU32(uint32(out.Uint()))
		case reflect.Int64:
			stack[j] = api.EncodeI64(out.Int())
		case reflect.Uint64:
			stack[j] = out.Uint()
		case reflect.Float32:
			stack[j] = api.EncodeF32(float32(out.Float()))
		case reflect.Float64:
			stack[j] = api.EncodeF64(out.Float())
		}
	}
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[namespace]
	return ok
}

// Signatures returns the core signature of every function keyed by
// namespace then name, in the shape compiler.Request.Hosts expects.
func (r *Registry) Signatures() map[string]map[string]compiler.Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]compiler.Signature, len(r.funcs))
	for ns, funcs := range r.funcs {
		m := make(map[string]compiler.Signature, len(funcs))
		for name, f := range funcs {
			m[name] = f.sig
		}
		out[ns] = m
	}
	return out
}

// Merge copies every function of other into r. Existing entries are kept.
func (r *Registry) Merge(other *Registry) {
	if other == nil || other == r {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	for ns, funcs := range other.funcs {
		if r.funcs[ns] == nil {
			r.funcs[ns] = make(map[string]*Func, len(funcs))
		}
		for name, f := range funcs {
			if _, ok := r.funcs[ns][name]; !ok {
				r.funcs[ns][name] = f
			}
		}
	}
}

// Instantiate binds every namespace into rt as a host module. Namespaces
// whose module name is already taken in rt are skipped.
func (r *Registry) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for ns, funcs := range r.funcs {
		if rt.Module(ns) != nil {
			continue
		}
		b := rt.NewHostModuleBuilder(ns)
		for name, f := range funcs {
			b.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(f.call), f.sig.Params, f.sig.Results).
				Export(name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.Registration(errors.PhaseHost, ns, "*", err)
		}
		Logger().Debug("host module bound", zap.String("namespace", ns), zap.Int("funcs", len(funcs)))
	}
	return nil
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPPort -> get-http-port. Adjacent acronyms stay
// joined: GetHTTPURL -> get-httpurl.
func toKebabCase(s string) string {
	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// Last uppercase before lowercase starts next word, not part of acronym
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			result.WriteByte('-')
		}
		for j := i; j < end; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return result.String()
}
