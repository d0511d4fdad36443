package core

import (
	"strings"
	"testing"
)

func init() {
	Register(TargetSchema{
		Key:   "test_contacts",
		Group: "Test",
		Label: "Contacts",
		Columns: []TargetColumn{
			{Name: "Email", Required: true},
			{Name: "Phone"},
			{Name: "Last Name", Required: true},
		},
	})
}

func TestRegistry_Lookup(t *testing.T) {
	schema, ok := Get("test_contacts")
	if !ok {
		t.Fatal("test_contacts not registered")
	}
	if got := strings.Join(schema.ColumnNames(), ","); got != "Email,Phone,Last Name" {
		t.Errorf("ColumnNames = %s", got)
	}
	if c, ok := schema.Column("Phone"); !ok || c.Required {
		t.Errorf("Column(Phone) = %+v, %v", c, ok)
	}
	if _, ok := schema.Column("Fax"); ok {
		t.Error("Column(Fax) should not exist")
	}
	if _, ok := Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}

	found := false
	for _, g := range Groups() {
		if g == "Test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Groups() = %v, missing Test", Groups())
	}
	if len(ByGroup("Test")) != 1 {
		t.Errorf("ByGroup(Test) = %v", ByGroup("Test"))
	}
	if TargetCount() < 1 || len(All()) != TargetCount() {
		t.Errorf("TargetCount = %d, All = %d", TargetCount(), len(All()))
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("registering a duplicate key should panic")
		}
	}()
	Register(TargetSchema{Key: "test_contacts"})
}

func TestValidateConfig(t *testing.T) {
	schema, _ := Get("test_contacts")

	warnings := ValidateConfig(MappingConfig{
		Mapping: map[string]string{
			"mail":   "Email",
			"fax":    "Fax",
			"ignore": " ",
		},
	}, schema)

	want := []string{
		`fax is mapped to "Fax", which is not a Contacts column`,
		`required column "Last Name" is not mapped`,
	}
	if strings.Join(warnings, "|") != strings.Join(want, "|") {
		t.Errorf("warnings = %q, want %q", warnings, want)
	}

	complete := ValidateConfig(MappingConfig{Mapping: map[string]string{
		"mail": "Email",
		"sn":   "Last Name",
	}}, schema)
	if len(complete) != 0 {
		t.Errorf("complete mapping warnings = %v", complete)
	}
}

func TestService_ListTargetsByGroup(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	byGroup := svc.ListTargetsByGroup()
	if len(byGroup["Test"]) != 1 || byGroup["Test"][0].Key != "test_contacts" {
		t.Errorf("ListTargetsByGroup()[Test] = %v", byGroup["Test"])
	}
}
