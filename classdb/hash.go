package classdb

import "hash/fnv"

// SignatureHash returns the FNV-1a 64 hash of the method's canonical
// signature. It never returns 0.
func SignatureHash(m *Method) uint64 {
	h := fnv.New64a()
	h.Write([]byte(m.Signature()))
	if sum := h.Sum64(); sum != 0 {
		return sum
	}
	return 1
}
