package ir

import (
	"fmt"
	"slices"
)

// SchemaID is the immutable, content-derived address of a deployed schema.
type SchemaID string

// Type is a column or parameter type.
type Type string

const (
	TypeText Type = "text"
	TypeInt  Type = "int"
	TypeBool Type = "bool"
	TypeUUID Type = "uuid"
	TypeBlob Type = "blob"
)

// ValidTypes lists every accepted Type.
var ValidTypes = map[Type]bool{
	TypeText: true,
	TypeInt:  true,
	TypeBool: true,
	TypeUUID: true,
	TypeBlob: true,
}

// Modifier is an access/behavior tag on a procedure.
type Modifier string

const (
	ModPublic  Modifier = "public"
	ModView    Modifier = "view"
	ModOwner   Modifier = "owner"
	ModPrivate Modifier = "private"
)

// ValidModifiers lists every accepted Modifier.
var ValidModifiers = map[Modifier]bool{
	ModPublic:  true,
	ModView:    true,
	ModOwner:   true,
	ModPrivate: true,
}

// Column is a named, typed column of a table or a table return shape.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Param is a named, typed procedure parameter. Position is significant.
type Param struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// TableDef describes one schema-owned table.
type TableDef struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primary_key,omitempty"`
}

// Column returns the named column.
func (t TableDef) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in declaration order.
func (t TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ReturnKind distinguishes the three return shapes.
type ReturnKind string

const (
	ReturnNone   ReturnKind = "none"
	ReturnScalar ReturnKind = "scalar"
	ReturnTable  ReturnKind = "table"
)

// ReturnShape is nothing, a single typed value, or a table of typed columns.
type ReturnShape struct {
	Kind    ReturnKind `json:"kind"`
	Type    Type       `json:"type,omitempty"`
	Columns []Column   `json:"columns,omitempty"`
}

// String renders the shape for error messages, e.g. "table(id uuid, name text)".
func (r ReturnShape) String() string {
	switch r.Kind {
	case ReturnScalar:
		return string(r.Type)
	case ReturnTable:
		s := "table("
		for i, c := range r.Columns {
			if i > 0 {
				s += ", "
			}
			s += c.Name + " " + string(c.Type)
		}
		return s + ")"
	default:
		return "none"
	}
}

// ProcedureSig is a declared procedure of a schema: its parameters, return
// shape, modifiers and body.
type ProcedureSig struct {
	Name      string      `json:"name"`
	Params    []Param     `json:"params"`
	Returns   ReturnShape `json:"returns"`
	Modifiers []Modifier  `json:"modifiers"`
	Body      []Statement `json:"-"`
}

// Has reports whether the procedure carries modifier m.
func (p ProcedureSig) Has(m Modifier) bool {
	return slices.Contains(p.Modifiers, m)
}

// IsView reports whether the procedure runs read-only.
func (p ProcedureSig) IsView() bool {
	return p.Has(ModView)
}

// Signature renders "name(a text, b int) returns int".
func (p ProcedureSig) Signature() string {
	return formatSignature(p.Name, p.Params, p.Returns)
}

// ForeignStub is a caller-side declaration of a procedure expected to exist
// in some other schema. It is bound only at call time.
type ForeignStub struct {
	Name    string      `json:"name"`
	Params  []Param     `json:"params"`
	Returns ReturnShape `json:"returns"`
}

// Signature renders "name(a text) returns table(id uuid)".
func (f ForeignStub) Signature() string {
	return formatSignature(f.Name, f.Params, f.Returns)
}

func formatSignature(name string, params []Param, ret ReturnShape) string {
	s := name + "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += p.Name + " " + string(p.Type)
	}
	s += ")"
	if ret.Kind != ReturnNone && ret.Kind != "" {
		s += " returns " + ret.String()
	}
	return s
}

// SchemaSpec is a compiled, deployable schema.
type SchemaSpec struct {
	ID         SchemaID       `json:"id"`
	Name       string         `json:"name"`
	Owner      string         `json:"owner"`
	Source     string         `json:"-"`
	Tables     []TableDef     `json:"tables"`
	Stubs      []ForeignStub  `json:"foreign"`
	Procedures []ProcedureSig `json:"procedures"`
}

// Mutation is one storage write, recorded in execution order.
type Mutation struct {
	Schema   SchemaID `json:"schema"`
	Table    string   `json:"table"`
	Op       string   `json:"op"`
	Values   IRObject `json:"values,omitempty"`
	Where    IRObject `json:"where,omitempty"`
	Affected int64    `json:"affected"`
}

// Canonical returns the mutation as an IRObject for hashing.
func (m Mutation) Canonical() IRObject {
	obj := IRObject{
		"schema":   IRString(m.Schema),
		"table":    IRString(m.Table),
		"op":       IRString(m.Op),
		"affected": IRInt(m.Affected),
	}
	if m.Values != nil {
		obj["values"] = m.Values
	}
	if m.Where != nil {
		obj["where"] = m.Where
	}
	return obj
}

// Call status values recorded in the transaction log.
const (
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
)

// TxRecord is the logged outcome of one top-level call.
type TxRecord struct {
	Seq          int64    `json:"seq"`
	TxID         string   `json:"tx_id"`
	Caller       string   `json:"caller"`
	Height       int64    `json:"height"`
	Schema       SchemaID `json:"schema"`
	Procedure    string   `json:"procedure"`
	Args         IRArray  `json:"args"`
	Status       string   `json:"status"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Result       Result   `json:"result"`
	ResultHash   string   `json:"result_hash,omitempty"`
	DeltaDigest  string   `json:"delta_digest,omitempty"`
	Mutations    int      `json:"mutations"`
}

// Deployment is the logged record of one deployed schema source.
type Deployment struct {
	Seq        int64    `json:"seq"`
	SchemaID   SchemaID `json:"schema_id"`
	Name       string   `json:"name"`
	Owner      string   `json:"owner"`
	Source     string   `json:"source"`
	SourceHash string   `json:"source_hash"`
}

// CheckValue reports whether v is acceptable for type t. Null is accepted
// for every type; uuid format is checked by callers that import uuid.
func CheckValue(t Type, v IRValue) error {
	if IsNull(v) {
		return nil
	}
	switch t {
	case TypeInt:
		if _, ok := v.(IRInt); ok {
			return nil
		}
	case TypeBool:
		if _, ok := v.(IRBool); ok {
			return nil
		}
	case TypeText, TypeUUID, TypeBlob:
		if _, ok := v.(IRString); ok {
			return nil
		}
	default:
		return fmt.Errorf("unknown type %q", t)
	}
	return fmt.Errorf("expected %s, got %s", t, TypeName(v))
}

// TypeName names the dynamic type of v for error messages.
func TypeName(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRBool:
		return "bool"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
