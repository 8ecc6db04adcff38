// Package ir provides the intermediate representation shared by every
// schemahost package: runtime values, compiled schemas, procedure
// signatures, body statements, results and transaction records.
//
// ir imports nothing internal. Constraints:
//   - no float types; numbers are int64
//   - JSON tags use snake_case
//   - anything hashed goes through MarshalCanonical
package ir
