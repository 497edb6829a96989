// Package engine defines the boundary between the binding layer and a
// native engine.
//
// A Backend is everything the binding layer needs from an engine: member
// resolution, object construction and reference counting, and signal
// connection mirroring. Callbacks is the reverse direction, implemented by
// the runtime: the engine invokes virtual members, emits signals and
// reports freed objects through it.
//
// Three backends ship with the module:
//
//	engine/local - native classes implemented as Go functions, in process
//	engine/wasm  - engine compiled to a core wasm module, hosted by wazero
//	engine/dl    - engine shared library with a C ABI, loaded through purego
//
// # Native Call Status
//
// Backends that cross a real ABI report call outcomes as int32 status
// codes. StatusError converts them to structured errors:
//
//	0  StatusOK
//	1  StatusBadMethod    unknown method id
//	2  StatusBadInstance  self is not a live object
//	3  StatusArity        wrong argument count
//	4  StatusType         argument of the wrong type
//	*  any other value    native failure
package engine
