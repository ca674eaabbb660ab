package reflector

import (
	"encoding/json"
	"errors"
	"testing"
)

type demoImpl struct{}

func (d *demoImpl) Add(name string, age int) (string, error) {
	if age < 0 {
		return "", errors.New("negative age")
	}
	return name, nil
}

type loginImpl struct{}

func (l *loginImpl) Logout(token string) (bool, error) {
	return token != "", nil
}

func TestReflectBuildsOrderedMethods(t *testing.T) {
	entry, err := Reflect("demo", &demoImpl{}, "public", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(entry.Methods))
	}
	m := entry.Methods[0]
	if m.Name != "add" {
		t.Fatalf("expected add, got %s", m.Name)
	}
	if len(m.Params) != 2 || m.Params[0].Type != TypeString || m.Params[1].Type != TypeInt {
		t.Fatalf("unexpected params: %+v", m.Params)
	}
	if !m.Params[0].Required || !m.Params[1].Required {
		t.Fatalf("expected both params required: %+v", m.Params)
	}
}

func TestResolveMethodMatchesLowerCamelWireNameWithoutContract(t *testing.T) {
	entry, err := Reflect("demo", &demoImpl{}, "public", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := entry.ResolveMethod("add")
	if !ok {
		t.Fatalf("expected \"add\" to resolve without a contract entry")
	}
	if m.Name != "add" {
		t.Fatalf("got %s", m.Name)
	}
}

func TestSafeNameSanitizes(t *testing.T) {
	if got := SafeName("demo.v1/beta"); got != "SERVICE@@demov1beta" {
		t.Fatalf("got %q", got)
	}
}

func TestMetadataRoundTrips(t *testing.T) {
	entry, err := Reflect("login", &loginImpl{}, "public", map[string]string{"out": "logout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := entry.Metadata["serviceMetadata"]

	var decoded serviceMetadata
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ServiceKey != "login" {
		t.Fatalf("got serviceKey %q", decoded.ServiceKey)
	}
	if decoded.Methods["logout"].Params[0].Type != TypeString {
		t.Fatalf("unexpected method metadata: %+v", decoded.Methods)
	}
	if decoded.Contract["out"] != "logout" {
		t.Fatalf("unexpected contract: %+v", decoded.Contract)
	}
}

func TestResolveMethodAppliesContract(t *testing.T) {
	entry, err := Reflect("login", &loginImpl{}, "public", map[string]string{"out": "logout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := entry.ResolveMethod("out")
	if !ok {
		t.Fatalf("expected alias to resolve")
	}
	if m.Name != "logout" {
		t.Fatalf("got %s", m.Name)
	}

	if _, ok := entry.ResolveMethod("missing"); ok {
		t.Fatalf("expected unknown function to not resolve")
	}
}

func TestInvokeCallsBoundMethod(t *testing.T) {
	entry, err := Reflect("demo", &demoImpl{}, "public", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, _ := entry.ResolveMethod("add")
	result, err := entry.Invoke(m, []interface{}{"tom", float64(18)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "tom" {
		t.Fatalf("got %v", result)
	}
}
