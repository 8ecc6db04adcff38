// Package harness runs YAML scenarios against a real engine.
//
// Each scenario runs on a fresh in-memory store with deterministic tx ids
// and heights, so its trace can be compared against a golden file.
//
// # Scenario Format
//
//	name: proxy_add_admin
//	description: "Only admins may add admins"
//	max_call_depth: 16          # optional
//	tx_prefix: add-admin        # optional, tx ids are <prefix>-<n>
//	schemas:
//	  - as: proxy
//	    source: schemas/proxy.cue
//	    owner: owner
//	setup:
//	  - call: proxy.register_owner
//	    caller: alice
//	flow:
//	  - call: proxy.add_admin
//	    caller: bob
//	    args: [carol]
//	    expect:
//	      kind: ApplicationError
//	      message: caller is not an admin
//	assertions:
//	  - type: row_count
//	    table: proxy.admins
//	    count: 1
//
// Source paths are relative to the scenario file. A string argument of the
// form ${alias} is replaced by the deployed id of that schema. Setup calls
// must succeed; flow calls are checked against their expect clause, which
// defaults to success.
//
// # Assertion Types
//
//   - trace_contains: a call appears in the trace, optionally with a status
//     or error kind
//   - trace_order: calls appear in the given order
//   - trace_count: a call appears exactly N times
//   - final_state: a table has a row matching where whose columns include
//     expect
//   - row_count: a table holds exactly N rows
package harness
