// Package marshal moves render options into engine memory.
//
// A Marshaler writes strings, font buffers and the RenderOptions block into
// regions obtained from an engine Allocator. Every region is recorded in a
// Tracker the moment it is allocated, so the caller can release all of them
// with a single Free no matter where marshaling stopped:
//
//	t := marshal.NewTracker()
//	defer t.FreeAndRelease(inst.Allocator())
//
//	m, err := marshal.New(inst, t)
//	if err != nil {
//		return err
//	}
//	block, err := m.Options(opts)
//
// Validate checks a document and its options without touching engine memory.
// Callers run it before acquiring an engine so bad input never reaches one.
package marshal
