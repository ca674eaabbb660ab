// Package reflector implements the Service Registrar & Metadata
// Reflector (spec §4.B): it turns a Go struct pointer into a
// ServiceEntry describing, without static per-service glue code, which
// methods are invokable and what positional parameters each expects.
//
// The teacher's server/service.go reflects services too, but for a
// completely different calling convention: mini-rpc methods are
// func(*Args, *Reply) error, where Args/Reply are caller-defined structs
// decoded wholesale from one JSON object. This host's wire format is
// JSON-RPC 2.0 with a positional params array (spec §6), so the
// reflected calling convention here is
// func(p1 T1, p2 T2, ...) (result, error) with each Ti one of the
// primitive types the dispatcher validates against (spec §3's Param
// typeTag enum); a pointer-typed Ti marks that parameter optional. The
// structural idea — reflect.TypeOf + reflect.Method + reflect.Value.Call
// driving the dispatch, and a declarative method-descriptor builder
// standing in for the source's runtime class reflection (spec §9
// Design Notes) — is the part kept from the teacher.
package reflector

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"
)

// TypeTag is the declared primitive type of a reflected parameter.
type TypeTag string

const (
	TypeInt    TypeTag = "int"
	TypeFloat  TypeTag = "float"
	TypeBool   TypeTag = "bool"
	TypeString TypeTag = "string"
	TypeMixed  TypeTag = "mixed"
)

// Param describes one positional parameter of a reflected method.
type Param struct {
	Name     string  `json:"name"`
	Type     TypeTag `json:"type"`
	Required bool    `json:"required"`
}

// Method describes one invokable method of a reflected implementation.
type Method struct {
	Name   string  `json:"name"`
	Params []Param `json:"params"`

	goMethod reflect.Method
}

// methodMetadata is the JSON shape of one entry in the advertised
// "methods" map (spec §6).
type methodMetadata struct {
	Params []Param `json:"params"`
}

// serviceMetadata is the opaque payload published under the
// "serviceMetadata" instance metadata key (spec §6).
type serviceMetadata struct {
	ServiceKey string                    `json:"serviceKey"`
	Methods    map[string]methodMetadata `json:"methods"`
	Contract   map[string]string         `json:"contract"`
}

// ServiceEntry is the runtime record for one registered service
// identifier (spec §3).
type ServiceEntry struct {
	Key      string            // identifier k
	Methods  []Method          // ordered, sorted by wire name
	Contract map[string]string // alias -> real method name
	Impl     reflect.Value     // bound implementation handle

	SafeName    string // "SERVICE@@" + sanitize(k)
	Namespace   string
	Metadata    map[string]string // flat registry metadata, including serviceMetadata + description
}

var sanitizeRE = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize strips every character outside [A-Za-z0-9_-] from k.
func Sanitize(k string) string {
	return sanitizeRE.ReplaceAllString(k, "")
}

// SafeName computes the registry-published name for identifier k.
func SafeName(k string) string {
	return "SERVICE@@" + Sanitize(k)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Reflect builds a ServiceEntry for impl (which must be a pointer to a
// struct) bound to identifier k, applying the given namespace and
// contract alias map.
//
// Only methods directly exported on impl's method set with the
// signature func(P1, P2, ...) (R, error) — where every Pi is one of
// int*, uint*, float32/64, bool, string, an interface type (tagged
// "mixed"), or a pointer to one of those (marking the parameter
// optional) — are reflected; anything else is skipped
// rather than rejected, since an implementation type may carry
// unrelated exported helper methods that are not meant to be callable
// over RPC.
func Reflect(k string, impl interface{}, namespace string, contract map[string]string) (*ServiceEntry, error) {
	v := reflect.ValueOf(impl)
	if v.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("reflector: implementation for %q must be a pointer, got %s", k, v.Kind())
	}
	if v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("reflector: implementation for %q must point to a struct, got %s", k, v.Elem().Kind())
	}

	typ := v.Type()
	entry := &ServiceEntry{
		Key:       k,
		Contract:  contract,
		Impl:      v,
		SafeName:  SafeName(k),
		Namespace: namespace,
	}

	for i := 0; i < typ.NumMethod(); i++ {
		gm := typ.Method(i)
		m, ok := reflectMethod(gm)
		if !ok {
			continue
		}
		entry.Methods = append(entry.Methods, m)
	}

	sort.Slice(entry.Methods, func(i, j int) bool { return entry.Methods[i].Name < entry.Methods[j].Name })

	metaJSON, err := marshalMetadata(entry)
	if err != nil {
		return nil, fmt.Errorf("reflector: marshal metadata for %q: %w", k, err)
	}

	entry.Metadata = map[string]string{
		"serviceMetadata": string(metaJSON),
		"description":     fmt.Sprintf("service %q exposes %d method(s)", k, len(entry.Methods)),
	}

	return entry, nil
}

func reflectMethod(gm reflect.Method) (Method, bool) {
	mt := gm.Type // method type, receiver is In(0)
	if mt.NumOut() != 2 {
		return Method{}, false
	}
	if mt.Out(1) != errorType {
		return Method{}, false
	}

	params := make([]Param, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		p, ok := tagFor(mt.In(i))
		if !ok {
			return Method{}, false
		}
		params = append(params, Param{
			Name:     fmt.Sprintf("arg%d", i-1),
			Type:     p.tag,
			Required: !p.optional,
		})
	}

	return Method{Name: wireName(gm.Name), Params: params, goMethod: gm}, true
}

// wireName derives the client-visible method name from the exported Go
// identifier reflect.Type.Method gives us. Go can only reflect exported
// (capitalized) methods, but spec §6's wire contract names methods in
// lowerCamel (e.g. "demo.add" for an Add method) with no contract entry
// required — so the wire name is the Go name with its leading rune
// lower-cased, decoupled from the identifier actually invoked via
// goMethod (spec §9 Design Notes).
func wireName(goName string) string {
	r, size := utf8.DecodeRuneInString(goName)
	if r == utf8.RuneError {
		return goName
	}
	return string(unicode.ToLower(r)) + goName[size:]
}

type paramKind struct {
	tag      TypeTag
	optional bool
}

func tagFor(t reflect.Type) (paramKind, bool) {
	optional := false
	if t.Kind() == reflect.Ptr {
		optional = true
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return paramKind{TypeInt, optional}, true
	case reflect.Float32, reflect.Float64:
		return paramKind{TypeFloat, optional}, true
	case reflect.Bool:
		return paramKind{TypeBool, optional}, true
	case reflect.String:
		return paramKind{TypeString, optional}, true
	case reflect.Interface:
		return paramKind{TypeMixed, optional}, true
	default:
		return paramKind{}, false
	}
}

func marshalMetadata(entry *ServiceEntry) ([]byte, error) {
	sm := serviceMetadata{
		ServiceKey: entry.Key,
		Methods:    make(map[string]methodMetadata, len(entry.Methods)),
		Contract:   entry.Contract,
	}
	for _, m := range entry.Methods {
		sm.Methods[m.Name] = methodMetadata{Params: m.Params}
	}
	return json.Marshal(sm)
}

// ResolveMethod resolves a client-visible function name to the real
// method, applying the contract alias map (spec §4.F step 5).
func (e *ServiceEntry) ResolveMethod(funcName string) (*Method, bool) {
	real := funcName
	if e.Contract != nil {
		if alias, ok := e.Contract[funcName]; ok {
			real = alias
		}
	}
	for i := range e.Methods {
		if e.Methods[i].Name == real {
			return &e.Methods[i], true
		}
	}
	return nil, false
}

// Invoke calls the method on the bound implementation with positional
// arguments already decoded to the right Go types, returning the single
// result value (if any) or the error the method returned.
func (e *ServiceEntry) Invoke(m *Method, args []interface{}) (interface{}, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, e.Impl)

	mt := m.goMethod.Type
	for i, a := range args {
		want := mt.In(i + 1)
		in = append(in, coerceArg(a, want))
	}
	// Any declared parameters beyond the supplied args must be optional
	// (validated by the dispatcher before Invoke is called); pass zero
	// values for them.
	for i := len(args); i < len(m.Params); i++ {
		in = append(in, reflect.Zero(mt.In(i+1)))
	}

	out := m.goMethod.Func.Call(in)
	var resultErr error
	if errv := out[1]; !errv.IsNil() {
		resultErr = errv.Interface().(error)
	}
	return out[0].Interface(), resultErr
}

func coerceArg(a interface{}, want reflect.Type) reflect.Value {
	if a == nil {
		return reflect.Zero(want)
	}
	v := reflect.ValueOf(a)
	target := want
	optional := false
	if want.Kind() == reflect.Ptr {
		optional = true
		target = want.Elem()
	}
	if v.Type().ConvertibleTo(target) {
		v = v.Convert(target)
	}
	if optional {
		p := reflect.New(target)
		p.Elem().Set(v)
		return p
	}
	return v
}
