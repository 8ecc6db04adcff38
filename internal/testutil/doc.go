// Package testutil holds deterministic helpers shared by the harness and
// package tests.
package testutil
