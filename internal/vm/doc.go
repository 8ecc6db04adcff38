// Package vm is the reference interpreter for procedure bodies.
//
// The interpreter runs statements strictly in order against a Frame. It
// knows nothing about access control, call depth or which schema owns which
// table: every storage operation and every nested call is handed to the
// frame's Host, which the engine binds to the executing schema and context.
//
// Variables hold ir.Result values. Parameters, let and uuid bind scalars;
// select binds a table; call and foreign bind whatever the callee returns.
package vm
