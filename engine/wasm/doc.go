// Package wasm hosts a native engine compiled to a core WebAssembly module
// and exposes it as an engine.Backend.
//
// # Guest contract
//
// The guest exports its linear memory as "memory" and the functions below.
// Strings are passed as (ptr, len) pairs of UTF-8 bytes; argument lists and
// return values are variant cells (see the variant package).
//
//	nb_alloc(size, align i32) i32
//	nb_free(ptr, size, align i32)                                   optional
//	nb_version() i64                                                ptr | len<<32
//	nb_resolve(cls_ptr, cls_len, mem_ptr, mem_len i32, hash i64) i32   0 = unknown
//	nb_call(id i32, self i64, args_ptr, argc, ret_ptr i32) i32      status
//	nb_construct(cls_ptr, cls_len i32) i64                          optional, 0 = failure
//	nb_is_refcounted(cls_ptr, cls_len i32) i32                      optional
//	nb_reference(self i64)                                          optional
//	nb_unreference(self i64) i32                                    optional, 1 = freed
//	nb_destroy(self i64)                                            optional
//	nb_connect(self i64, name_ptr, name_len i32) i32                optional, status
//	nb_disconnect(self i64, name_ptr, name_len i32) i32             optional, status
//	nb_is_alive(self i64) i32                                       optional
//
// Status values are the engine.Status constants.
//
// # Host module
//
// The backend instantiates a host module named "nativebind" that the guest
// imports to reach the managed side:
//
//	call_virtual(self i64, name_ptr, name_len, args_ptr, argc, ret_ptr i32) i32
//	    1 handled (result written to ret_ptr), 0 not handled, -1 error
//	emit_signal(self i64, name_ptr, name_len, args_ptr, argc i32) i32
//	    0 ok, -1 error
//	object_freed(self i64)
//	log(level, ptr, len i32)
//	    level 0 debug, 1 info, 2 warn, 3 error
//
// Out-of-line data written for a handled call_virtual result is allocated
// with nb_alloc and belongs to the guest afterwards.
//
// # Thread Safety
//
// Engine is NOT safe for concurrent use. The guest is a single wasm
// instance; calls into it must be serialized by the caller. Reentrant calls
// from callbacks are allowed.
package wasm
