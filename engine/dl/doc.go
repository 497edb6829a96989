// Package dl loads a native engine built as a C shared library and exposes
// it as an engine.Backend without cgo.
//
// Method binds are plain C functions looked up by symbol name. The default
// naming is nb_<Class>_<member>_<hash as 16 hex digits>; Config.Symbol
// overrides it. A method is called with the receiver pointer first (omitted
// when self is 0) followed by its arguments, all passed as machine words:
//
//	bool      0 or 1
//	int       int64_t
//	Object    engine object pointer
//	String    const char*, NUL terminated, valid for the duration of the call
//
// float and the array types cannot be passed through this ABI; resolving a
// method that uses them fails with unsupported. A String result is read as
// a NUL terminated const char* owned by the library.
//
// The lifecycle functions are optional:
//
//	const char* nb_version(void);
//	uint64_t    nb_construct(const char* class);
//	int32_t     nb_is_refcounted(const char* class);
//	void        nb_reference(uint64_t self);
//	int32_t     nb_unreference(uint64_t self);    // 1 when freed
//	void        nb_destroy(uint64_t self);
//	int32_t     nb_connect(uint64_t self, const char* signal);
//	int32_t     nb_disconnect(uint64_t self, const char* signal);
//	int32_t     nb_is_alive(uint64_t self);
//
// A library exporting nb_init receives the managed callbacks once, with an
// opaque userdata word it must pass back on every callback:
//
//	void nb_init(uintptr_t userdata,
//	    uintptr_t (*call_virtual)(uintptr_t userdata, uint64_t self,
//	        const char* class, const char* member,
//	        const int64_t* args, uintptr_t argc, int64_t* ret),
//	    uintptr_t (*emit_signal)(uintptr_t userdata, uint64_t self,
//	        const char* class, const char* signal,
//	        const int64_t* args, uintptr_t argc),
//	    void (*object_freed)(uintptr_t userdata, uint64_t self));
//
// call_virtual returns 0 when the member is not overridden, 1 when it was
// handled (the result, if any, is stored in *ret) and 2 on error.
// emit_signal returns 0 or 2. Callback arguments are decoded using the
// signatures of class in the API description.
//
// Supported on darwin, freebsd and linux.
package dl
