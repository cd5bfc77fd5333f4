package dbus

import (
	"strings"
	"testing"

	"github.com/kr/pretty"
)

const sampleIntrospectionXML = `<?xml version="1.0"?>
<node>
  <interface name="org.example.Foo">
    <method name="Ping">
      <annotation name="org.freedesktop.DBus.Method.NoReply" value="true"/>
    </method>
    <method name="Greet">
      <arg name="name" type="s" direction="in"/>
      <arg name="greeting" type="s" direction="out"/>
      <annotation name="org.freedesktop.DBus.Deprecated" value="true"/>
    </method>
    <property name="Count" type="i" access="readwrite"/>
  </interface>
  <node name="child1"/>
  <node name="child2"/>
</node>`

func TestParseInterfacesBasic(t *testing.T) {
	ifaces, children, err := ParseInterfaces(sampleIntrospectionXML)
	if err != nil {
		t.Fatalf("ParseInterfaces failed: %v", err)
	}
	if len(ifaces) != 1 {
		t.Fatalf("expected 1 interface, got %d", len(ifaces))
	}
	if got := []string{"child1", "child2"}; len(children) != 2 || children[0] != got[0] || children[1] != got[1] {
		t.Errorf("children = %v, want %v", children, got)
	}

	f := ifaces[0]
	if f.Name() != "org.example.Foo" {
		t.Errorf("interface name = %q, want org.example.Foo", f.Name())
	}
	ping, ok := f.Methods()["Ping"]
	if !ok {
		t.Fatalf("expected a Ping method, have:\n%s", pretty.Sprint(f.Methods()))
	}
	if !ping.IsOneway() {
		t.Error("Ping should be marked oneway via its NoReply annotation")
	}
	greet, ok := f.Methods()["Greet"]
	if !ok {
		t.Fatalf("expected a Greet method, have:\n%s", pretty.Sprint(f.Methods()))
	}
	if !greet.IsDeprecated() {
		t.Error("Greet should be marked deprecated")
	}
	if len(greet.InArgs()) != 1 || greet.InArgs()[0].Type() != 's' {
		t.Errorf("Greet in-args = %v, want one string", greet.InArgs())
	}
	if len(greet.OutArgs()) != 1 || greet.OutArgs()[0].Type() != 's' {
		t.Errorf("Greet out-args = %v, want one string", greet.OutArgs())
	}

	if _, ok := f.Properties()["Count"]; !ok {
		t.Fatal("expected a Count property")
	}
	if _, ok := f.dispatch["ping"]; !ok {
		t.Error("ParseInterfaces should install methods under their canonical selector")
	}
	if _, ok := f.dispatch["count"]; !ok {
		t.Error("ParseInterfaces should install the property getter")
	}
	if _, ok := f.dispatch["setCount:"]; !ok {
		t.Error("ParseInterfaces should install the property setter for a readwrite property")
	}
}

// TestParseInterfacesArgHostClassAnnotation checks that a nested
// <annotation> on an <arg> element reaches the Argument it annotates.
func TestParseInterfacesArgHostClassAnnotation(t *testing.T) {
	const doc = `<node>
  <interface name="org.example.Foo">
    <method name="Send">
      <arg name="payload" type="ay" direction="in">
        <annotation name="org.gnustep.objc.class" value="NSData"/>
      </arg>
    </method>
  </interface>
</node>`
	ifaces, _, err := ParseInterfaces(doc)
	if err != nil {
		t.Fatalf("ParseInterfaces failed: %v", err)
	}
	m := ifaces[0].Methods()["Send"]
	if m == nil || len(m.InArgs()) != 1 {
		t.Fatal("expected one Send in-arg")
	}
	arg := m.InArgs()[0]
	if v, ok := arg.Annotation(annoHostClass); !ok || v != "NSData" {
		t.Errorf("arg annotation = %q, %v; want NSData, true", v, ok)
	}
	if arg.hostClassHint != "NSData" {
		t.Errorf("hostClassHint = %q, want NSData", arg.hostClassHint)
	}
}

func TestParseInterfacesMalformedXML(t *testing.T) {
	if _, _, err := ParseInterfaces("<node><interface"); err == nil {
		t.Error("malformed XML should fail to parse")
	} else if de, ok := err.(*Error); !ok || de.Kind != MalformedSignature {
		t.Errorf("expected MalformedSignature, got %v", err)
	}
}

func TestParseInterfacesBadPropertyAccess(t *testing.T) {
	doc := `<node><interface name="org.example.Foo">
    <property name="Count" type="i" access="bogus"/>
  </interface></node>`
	if _, _, err := ParseInterfaces(doc); err == nil {
		t.Error("unknown property access value should fail to parse")
	}
}

func TestParseInterfacesBadArgSignature(t *testing.T) {
	doc := `<node><interface name="org.example.Foo">
    <method name="Bad"><arg name="x" type="zzz" direction="in"/></method>
  </interface></node>`
	if _, _, err := ParseInterfaces(doc); err == nil {
		t.Error("unparseable argument signature should fail")
	}
}

func TestIntrospectionXMLRoundTrip(t *testing.T) {
	ifaces, _, err := ParseInterfaces(sampleIntrospectionXML)
	if err != nil {
		t.Fatalf("ParseInterfaces failed: %v", err)
	}
	xmlOut := ifaces[0].IntrospectionXML()

	reparsed, _, err := ParseInterfaces("<node>" + xmlOut + "</node>")
	if err != nil {
		t.Fatalf("re-parsing rendered XML failed: %v", err)
	}
	if len(reparsed) != 1 {
		t.Fatalf("expected 1 interface after round trip, got %d", len(reparsed))
	}
	f := reparsed[0]
	if f.Name() != "org.example.Foo" {
		t.Errorf("round-tripped name = %q, want org.example.Foo", f.Name())
	}
	ping, ok := f.Methods()["Ping"]
	if !ok || !ping.IsOneway() {
		t.Error("round trip should preserve Ping's oneway annotation")
	}
	greet, ok := f.Methods()["Greet"]
	if !ok || !greet.IsDeprecated() {
		t.Error("round trip should preserve Greet's deprecated annotation")
	}
	if _, ok := f.Properties()["Count"]; !ok {
		t.Error("round trip should preserve the Count property")
	}
	// Synthesized accessors must not leak into the rendered document
	// as wire methods.
	if strings.Contains(xmlOut, `<method name="setCount"`) || strings.Contains(xmlOut, `<method name="Count"`) {
		t.Errorf("rendered XML advertises property accessors as methods:\n%s", xmlOut)
	}
}

func TestParseIntrospectionBindsRemoteInterfaces(t *testing.T) {
	doc, err := ParseIntrospection(sampleIntrospectionXML, Object{})
	if err != nil {
		t.Fatalf("ParseIntrospection failed: %v", err)
	}
	if len(doc.Interfaces) != 1 {
		t.Fatalf("expected 1 bound interface, got %d", len(doc.Interfaces))
	}
	if doc.Interfaces[0].Name() != "org.example.Foo" {
		t.Errorf("bound interface name = %q, want org.example.Foo", doc.Interfaces[0].Name())
	}
	if len(doc.Children) != 2 {
		t.Errorf("expected 2 children, got %d", len(doc.Children))
	}
}
