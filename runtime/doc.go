// Package runtime binds managed Go wrappers to the objects of a native
// engine.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, err := classdb.LoadFile("api.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := wasm.LoadFile(ctx, "engine.wasm", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(ctx, eng, db)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	node, err := rt.New(ctx, "Node", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Release(ctx)
//
//	name, err := node.Call(ctx, "get_name")
//
// # Ownership
//
// Every wrapper has one of three ownerships:
//
//	Owned     - created by the managed side; Release destroys the object
//	Shared    - reference counted; the wrapper holds one engine reference
//	Borrowed  - owned by the engine; Release only forgets the wrapper
//
// Shared wrappers that become unreachable release their engine reference
// on their own. Using a wrapper after Release, or after the engine freed
// its object, fails with a freed_handle error; Ptr panics with that error.
//
// # Typed Calls
//
// Generated wrappers call the thunks in this package:
//
//	var tokAddChild = bind.Token{Class: "Node", Member: "add_child", Hash: 0x3a8b}
//
//	func (n Node) AddChild(ctx context.Context, child Node) error {
//	    return runtime.Void1(ctx, n.Object, tokAddChild, child)
//	}
//
// # Virtuals and Signals
//
// Overrides are registered on Dispatcher with the helpers of package
// dispatch and run against the value passed to New (or SetSelf).
// Object.Connect and the helpers of package signal subscribe to signals.
// Object arguments of overrides and signal handlers decode to *Object.
//
// # Configuration
//
// Config is loaded from YAML:
//
//	log_level: debug
//	preload: true
//	debug_handles: true
//	strict_version: true
//
// Preload resolves every method bind at New. DebugHandles makes the handle
// table ask the engine whether borrowed objects are still alive.
// StrictVersion turns an API/engine version mismatch into an error.
package runtime
