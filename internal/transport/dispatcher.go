// Package transport implements the Transport & Dispatcher (spec §4.F):
// a TCP listener, one goroutine per accepted connection, line-framed
// JSON-RPC parsing, identifier/method resolution, parameter validation,
// reflective invocation, and outcome recording.
//
// The teacher's server.businessHandler (BX-D-mini-RPC/server/server.go)
// plays the same role for mini-rpc's ServiceMethod convention: parse
// "Service.Method", look up the service and method, reflect.New the
// args/reply structs, invoke, marshal the reply. Dispatch here follows
// the same shape but is driven by the spec's very different wire
// contract (JSON-RPC 2.0, positional params, numbered error codes) and
// adds the steps the teacher's protocol never needed: contract alias
// resolution, per-parameter type validation, and outcome recording into
// the Health & Weight Controller.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"servicehost/internal/health"
	"servicehost/internal/middleware"
	"servicehost/internal/reflector"
	"servicehost/internal/registrar"
	"servicehost/internal/rpc"
)

// Dispatcher resolves and invokes RPC calls against a Registry (spec
// §4.F steps 1–9).
type Dispatcher struct {
	registry         *registrar.Registry
	ctrl             *health.Controller
	timeoutThreshold time.Duration
}

// NewDispatcher builds a Dispatcher. timeoutThreshold is Tth.
func NewDispatcher(registry *registrar.Registry, ctrl *health.Controller, timeoutThreshold time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, ctrl: ctrl, timeoutThreshold: timeoutThreshold}
}

// Handle implements middleware.HandlerFunc: the single entry point that
// performs every step of spec §4.F against an already-parsed request.
func (d *Dispatcher) Handle(ctx context.Context, req *rpc.Request) *rpc.Response {
	// Step 2: protocol-level shape checks.
	if req.JSONRPC != rpc.Version || req.Method == "" || req.ID == nil {
		return rpc.NewError(req.ID, rpc.CodeInvalidRequest, "invalid request: missing jsonrpc/method/id")
	}

	// Step 3: split "identifier.funcName" on the first dot.
	dot := strings.IndexByte(req.Method, '.')
	if dot <= 0 || dot == len(req.Method)-1 {
		return rpc.NewError(req.ID, rpc.CodeInvalidRequest, fmt.Sprintf("invalid method format: %q", req.Method))
	}
	identifier := req.Method[:dot]
	funcName := req.Method[dot+1:]

	// Step 4: resolve identifier.
	entry, ok := d.registry.Entry(identifier)
	if !ok {
		known := d.registry.Identifiers()
		return rpc.NewError(req.ID, rpc.CodeMethodNotFound, fmt.Sprintf("unknown identifier %q; known identifiers: %v", identifier, known))
	}

	// Step 5: resolve the real method through the contract alias map.
	method, ok := entry.ResolveMethod(funcName)
	if !ok {
		return rpc.NewError(req.ID, rpc.CodeMethodNotFound, fmt.Sprintf("unknown method %q on identifier %q", funcName, identifier))
	}

	// Step 6: validate params.
	args, verr := validateParams(req.Params, method)
	if verr != nil {
		return rpc.NewError(req.ID, rpc.CodeInvalidParams, verr.Error())
	}

	// Steps 7–9: invoke, measure, record, respond.
	t0 := time.Now()
	result, invokeErr := entry.Invoke(method, args)
	elapsed := time.Since(t0)

	if invokeErr != nil {
		d.ctrl.Record(identifier, elapsed, true)
		return rpc.NewError(req.ID, rpc.CodeInternal, fmt.Sprintf("method invocation: %s", invokeErr.Error()))
	}

	d.ctrl.Record(identifier, elapsed, false)
	return rpc.NewResult(req.ID, result)
}

// AsHandlerFunc adapts Handle to middleware.HandlerFunc.
func (d *Dispatcher) AsHandlerFunc() middleware.HandlerFunc {
	return d.Handle
}

// validateParams checks that raw decodes to an ordered list with at
// least as many elements as required params, and that each present
// element's primitive type matches its declared tag (spec §4.F step
// 6). It returns positional arguments ready for reflector.Invoke.
func validateParams(raw json.RawMessage, method *reflector.Method) ([]interface{}, error) {
	var list []interface{}
	if len(raw) == 0 {
		list = nil
	} else if err := json.Unmarshal(raw, &list); err != nil {
		// Per spec §9 Open Questions: object-keyed params are rejected
		// with -32602, not coerced positionally.
		return nil, fmt.Errorf("params must be a positional list: %v", err)
	}

	required := 0
	for _, p := range method.Params {
		if p.Required {
			required++
		}
	}
	if len(list) < required {
		return nil, fmt.Errorf("expected at least %d parameter(s), got %d", required, len(list))
	}
	if len(list) > len(method.Params) {
		return nil, fmt.Errorf("too many parameters: expected at most %d, got %d", len(method.Params), len(list))
	}

	for i, v := range list {
		want := method.Params[i].Type
		if !typeMatches(v, want) {
			return nil, fmt.Errorf("parameter %d (%s) expected type %s, got %T", i, method.Params[i].Name, want, v)
		}
	}

	return list, nil
}

func typeMatches(v interface{}, want reflector.TypeTag) bool {
	if want == reflector.TypeMixed {
		return true
	}
	switch want {
	case reflector.TypeString:
		_, ok := v.(string)
		return ok
	case reflector.TypeBool:
		_, ok := v.(bool)
		return ok
	case reflector.TypeFloat:
		_, ok := v.(float64)
		return ok
	case reflector.TypeInt:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		return f == float64(int64(f))
	default:
		return false
	}
}
