package marshal

import (
	"fmt"
	"sync"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"go.uber.org/zap"
)

type Memory = resvgruntime.Memory
type Allocator = resvgruntime.Allocator

// Role records what a region holds. It is only used in logs and tests.
type Role uint8

const (
	RoleString Role = iota
	RoleFont
	RolePointerArray
	RoleLengthArray
	RoleDocument
	RoleBlock
	RoleOutSlots
)

func (r Role) String() string {
	switch r {
	case RoleString:
		return "string"
	case RoleFont:
		return "font"
	case RolePointerArray:
		return "pointer-array"
	case RoleLengthArray:
		return "length-array"
	case RoleDocument:
		return "document"
	case RoleBlock:
		return "block"
	case RoleOutSlots:
		return "out-slots"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Region is one span of engine memory owned by a single render.
type Region struct {
	Addr  uint64
	Size  uint64
	Align uint64
	Role  Role
}

// Tracker lists the regions allocated for one render.
type Tracker struct {
	regions []Region
}

var trackerPool = sync.Pool{
	New: func() any {
		return &Tracker{regions: make([]Region, 0, 16)}
	},
}

// NewTracker returns an empty tracker from the pool.
func NewTracker() *Tracker {
	return trackerPool.Get().(*Tracker)
}

const maxPooledRegionCapacity = 128

// Release returns to pool. Must call after Free(); tracker invalid after Release.
func (t *Tracker) Release() {
	if cap(t.regions) > maxPooledRegionCapacity {
		return
	}
	t.Reset()
	trackerPool.Put(t)
}

func (t *Tracker) FreeAndRelease(alloc Allocator) {
	t.Free(alloc)
	t.Release()
}

// Alloc allocates a region and records it before returning. A null address
// from the allocator is reported as an allocation failure.
func (t *Tracker) Alloc(alloc Allocator, size, align uint64, role Role) (uint64, error) {
	addr, err := alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, align, err)
	}
	if addr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, align, nil)
	}
	t.Add(addr, size, align, role)
	return addr, nil
}

func (t *Tracker) Add(addr, size, align uint64, role Role) {
	t.regions = append(t.regions, Region{
		Addr:  addr,
		Size:  size,
		Align: align,
		Role:  role,
	})
}

// Free releases every recorded region, most recent first, and empties the
// tracker so a second Free releases nothing. It returns the number freed.
func (t *Tracker) Free(alloc Allocator) int {
	if alloc == nil || len(t.regions) == 0 {
		return 0
	}
	regions := t.regions
	t.regions = t.regions[:0]

	var total uint64
	for i := len(regions) - 1; i >= 0; i-- {
		r := regions[i]
		if r.Addr != 0 {
			alloc.Free(r.Addr, r.Size, r.Align)
		}
		total += r.Size
	}

	Logger().Debug("freed render regions",
		zap.Int("count", len(regions)),
		zap.Uint64("bytes", total))
	return len(regions)
}

func (t *Tracker) Reset() {
	t.regions = t.regions[:0]
}

func (t *Tracker) Count() int {
	return len(t.regions)
}

// Regions returns a copy of the recorded regions in allocation order.
func (t *Tracker) Regions() []Region {
	return append([]Region(nil), t.regions...)
}

// CountRole returns the number of recorded regions with the given role.
func (t *Tracker) CountRole(role Role) int {
	n := 0
	for _, r := range t.regions {
		if r.Role == role {
			n++
		}
	}
	return n
}
