// Package nativebind binds a managed Go object model to a native engine's
// object model.
//
// A native engine owns objects, exposes their methods by (class, member,
// signature hash) and calls back into the managed side for overridable
// ("virtual") members and for signals. This module provides the generic
// substrate between the two sides; per-class glue is generated from an API
// description instead of being written by hand.
//
// # Architecture Overview
//
//	nativebind/          Root package with Memory and Allocator interfaces
//	├── variant/         Value model, Go conversion and linear-memory codec
//	├── classdb/         Engine API description (classes, methods, signals)
//	├── handle/          Native handle table with ownership and ref counts
//	├── bind/            Method bind cache (token -> resolved call target)
//	├── dispatch/        Virtual dispatch chain (native -> managed overrides)
//	├── signal/          Signal hub with typed trampolines
//	├── engine/          Backend contract and implementations
//	│   ├── local/       In-process engine with Go-implemented classes
//	│   ├── wasm/        Engine compiled to WebAssembly, hosted by wazero
//	│   └── dl/          C ABI engine loaded with dlopen (purego)
//	├── runtime/         Runtime facade, Object wrappers and call thunks
//	├── bindgen/         Wrapper code generator
//	├── errors/          Structured error types
//	├── cmd/bindctl/     CLI: list, generate, call, interactive TUI
//	└── examples/basic/  Managed type overriding a native class
//
// # Quick Start
//
//	db, err := classdb.LoadFile("api.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(ctx, backend, db)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	label, err := rt.New(ctx, "Label", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = label.Call(ctx, "set_text", "hello")
//
// # Control Flow
//
// Managed to native calls go through handle resolution, the bind cache and
// a marshalling thunk. Native to managed calls arrive through the backend's
// callbacks and are routed to the dispatcher (virtual members) or the signal
// hub (signals).
//
// # Thread Safety
//
// The bind cache, handle table, dispatcher and signal hub are safe for
// concurrent use. Calls into a backend are synchronous and are expected to
// come from the thread the engine designates; engine backends themselves are
// not safe for concurrent calls on the same object.
package nativebind
