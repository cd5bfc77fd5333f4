package dbus

import "testing"

func TestRegistryRegisterLookupReset(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup('i'); ok {
		t.Fatal("fresh registry should have no bindings")
	}
	r.Register('i', "intValue")
	name, ok := r.Lookup('i')
	if !ok || name != "intValue" {
		t.Fatalf("Lookup('i') = (%q, %v), want (intValue, true)", name, ok)
	}
	r.Register('i', "otherValue")
	name, ok = r.Lookup('i')
	if !ok || name != "otherValue" {
		t.Fatalf("second Register('i', ...) should overwrite: got (%q, %v)", name, ok)
	}
	r.Reset()
	if _, ok := r.Lookup('i'); ok {
		t.Error("Reset should clear every binding")
	}
}

func TestGlobalRegistryIsolatedByReset(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()
	Register('s', "stringValue")
	if _, ok := globalRegistry.Lookup('s'); !ok {
		t.Fatal("Register should populate the global registry")
	}
	ResetRegistry()
	if _, ok := globalRegistry.Lookup('s'); ok {
		t.Error("ResetRegistry should clear the global registry")
	}
}

func TestBoxViaRegistryRequiresHostAccessor(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()
	Register('i', "customInt")
	if _, ok := boxViaRegistry(&Argument{dbusType: 'i'}, "not an accessor"); ok {
		t.Error("boxViaRegistry should fail for a value that is not a HostAccessor")
	}
}

func TestBoxViaRegistryRequiresBinding(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()
	host := fakeAccessor{vals: map[string]Value{"customInt": int64(1)}}
	if _, ok := boxViaRegistry(&Argument{dbusType: 'i'}, host); ok {
		t.Error("boxViaRegistry should fail when no accessor is registered for the code")
	}
}
