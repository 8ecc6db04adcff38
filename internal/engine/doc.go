// Package engine implements foreign-procedure dispatch and access control
// for deployed schemas.
//
// # Call path
//
// Engine.Call opens one store transaction and invokes the requested
// procedure with external origin. Every invocation, top-level or nested,
// goes through the same steps:
//
//	lookup -> CheckArgs -> Authorize -> Fork -> vm.RunBody -> CheckResult
//
// A body reaches other procedures through its host: local calls re-enter
// the invoker with internal origin, foreign calls go through
// ResolveAndCall, which looks the target up afresh, checks it against the
// caller's stub with Compatible, and only then invokes it. Nothing about a
// foreign binding is cached between calls, so a proxy whose stored target
// changes dispatches to the new implementation on its next call.
//
// # Atomicity
//
// Only Engine.Call holds the *store.Tx. Invocations see it as a
// store.Handle and cannot commit. The first error at any depth unwinds the
// whole chain and the transaction is rolled back; no nested side effect
// survives.
//
// # Determinism
//
// Deployments and calls share one sequence clock. Results and storage
// deltas are hashed with canonical JSON, and the only id source inside a
// body is the uuid statement, derived from the tx id. Replay re-executes a
// log against an empty store and compares the hashes.
package engine
