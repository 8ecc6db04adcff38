// Package queryir is the storage operation IR passed from the interpreter
// host to the storage collaborator.
//
// Every operation targets a single table of the executing schema. Ops are
// backend-neutral; internal/querysql compiles them to SQLite.
//
// The fragment is deliberately small:
//   - Select with an explicit or full projection and a conjunctive filter
//   - Insert of one row
//   - Update and Delete with a conjunctive filter
//   - Predicates: Equals, IsNull, And
//
// Values are ir.IRValue, so floats cannot reach storage.
package queryir
