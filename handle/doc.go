// Package handle tracks the native objects referenced by managed wrappers.
//
// Every wrapper holds exactly one Handle. The Table maps it to the native
// pointer, the native class name and an ownership tag:
//
//	Borrowed - engine-owned; released wrappers are simply forgotten
//	Owned    - created by us; the last release destroys the native object
//	Shared   - reference counted with the engine; the count is atomic
//
// Release reports what the caller must do on the native side through a
// Disposition, so the table never calls into the engine itself.
//
// # Freed Objects
//
// When the engine frees an object on its own, MarkFreed flags the entry.
// From then on Resolve fails with a freed_handle error instead of handing
// out a dangling pointer. With a Checker installed, Borrowed handles are
// additionally checked for liveness on every Resolve:
//
//	table := handle.NewTable(handle.WithChecker(engine))
//	h, _ := table.Insert(ptr, "Node", handle.Borrowed, wrapper)
//	ptr, err := table.Resolve(h)
//
// # Observers
//
// Observers receive EventCreated, EventRetained, EventReleased and
// EventFreed notifications after the table state has changed.
package handle
