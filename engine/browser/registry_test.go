package browser

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"gitlab.com/driverk/driverk"
)

func TestRegistryCall(t *testing.T) {
	expr, err := registryCall("find", map[string]interface{}{"by": "css", "value": `a[title="it's"]`})
	if err != nil {
		t.Fatalf("error building call: %s", err)
	}
	if !strings.HasPrefix(expr, registryScript+`("find", `) {
		t.Fatalf("expected the registry to be called with the op, got %s", expr[len(registryScript):])
	}
	if !strings.HasSuffix(expr, `{"by":"css","value":"a[title=\"it's\"]"})`) {
		t.Fatalf("expected json encoded args, got %s", expr[len(registryScript):])
	}
}

func TestDecodeResult(t *testing.T) {
	value, err := decodeResult("find elements", "", `{"value":["t:1","t:2"]}`)
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if ids := value.Array(); len(ids) != 2 || ids[1].String() != "t:2" {
		t.Fatalf("unexpected ids %v", ids)
	}

	value, err = decodeResult("get element attribute", "t:1", `{"value":null}`)
	if err != nil || value.Exists() && value.Value() != nil {
		t.Fatalf("expected a null value, got %v %v", value, err)
	}

	_, err = decodeResult("get element text", "t:9", `{"stale":true}`)
	var stale *driverk.StaleElementErr
	if !errors.As(err, &stale) || stale.ID != "t:9" {
		t.Fatalf("expected stale error for t:9, got %v", err)
	}

	_, err = decodeResult("find elements", "", `{"error":"invalid selector","message":"'##' is not a valid selector"}`)
	var protoErr *driverk.ProtocolErr
	if !errors.As(err, &protoErr) || protoErr.Code != "invalid selector" {
		t.Fatalf("expected invalid selector protocol error, got %v", err)
	}
	if !driverk.IsFatal(err) {
		t.Fatalf("protocol errors must be fatal")
	}

	for _, raw := range []string{`undefined`, `{"nothing":1}`} {
		if _, err := decodeResult("get element text", "t:1", raw); !errors.As(err, &protoErr) {
			t.Fatalf("expected protocol error for %s got %v", raw, err)
		}
	}
}

// fakeDocument evaluates the registry in goja against two stand in nodes
func fakeDocument(t *testing.T) *goja.Runtime {
	vm := goja.New()
	_, err := vm.RunString(`
		var nodes = [
			{isConnected: true, innerText: 'first'},
			{isConnected: true, innerText: 'second'}
		];
		var window = {};
		var document = {querySelectorAll: function() { return nodes; }};
	`)
	if err != nil {
		t.Fatalf("error building document: %s", err)
	}
	return vm
}

func runRegistry(t *testing.T, vm *goja.Runtime, op string, args map[string]interface{}) string {
	expr, err := registryCall(op, args)
	if err != nil {
		t.Fatalf("error building call: %s", err)
	}
	value, err := vm.RunString(expr)
	if err != nil {
		t.Fatalf("error running %s: %s", op, err)
	}
	return value.String()
}

func TestRegistryForgetsDetachedNodes(t *testing.T) {
	vm := fakeDocument(t)

	value, err := decodeResult("find elements", "", runRegistry(t, vm, "find", map[string]interface{}{"by": "css", "value": "li"}))
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	ids := value.Array()
	if len(ids) != 2 {
		t.Fatalf("expected two ids got %v", ids)
	}
	size := func() int64 { return vm.Get("window").ToObject(vm).Get("__driverk").ToObject(vm).Get("byId").ToObject(vm).Get("size").ToInteger() }
	if size() != 2 {
		t.Fatalf("expected both nodes registered, got %d", size())
	}

	if _, err := vm.RunString(`nodes[0].isConnected = false`); err != nil {
		t.Fatalf("error detaching: %s", err)
	}
	_, err = decodeResult("get element text", ids[0].String(), runRegistry(t, vm, "text", map[string]interface{}{"id": ids[0].String()}))
	if !driverk.IsStale(err) {
		t.Fatalf("expected stale for a detached node, got %v", err)
	}
	if size() != 1 {
		t.Fatalf("expected the detached node to be dropped, %d left", size())
	}

	text, err := decodeResult("get element text", ids[1].String(), runRegistry(t, vm, "text", map[string]interface{}{"id": ids[1].String()}))
	if err != nil || text.String() != "second" {
		t.Fatalf("expected the attached node to still resolve, got %v %v", text, err)
	}

	// a node that comes back is registered again under its old id
	if _, err := vm.RunString(`nodes[0].isConnected = true`); err != nil {
		t.Fatalf("error attaching: %s", err)
	}
	value, err = decodeResult("find elements", "", runRegistry(t, vm, "find", map[string]interface{}{"by": "css", "value": "li"}))
	if err != nil || value.Array()[0].String() != ids[0].String() {
		t.Fatalf("expected the same id again, got %v %v", value, err)
	}
	if size() != 2 {
		t.Fatalf("expected the node registered again, got %d", size())
	}
}
