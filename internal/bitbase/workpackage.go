package bitbase

import "sync"

// Dispenser thread-safely hands out [a,b) index ranges to worker
// goroutines (C10), grounded on the original engine's Workpackage
// (workpackage.h). Unlike that original — whose getNextIndexToLookAt
// has an unreachable increment after its return statement, a dead-code
// bug — this dispenser actually advances its cursor under the lock.
type Dispenser struct {
	mu          sync.Mutex
	next        uint64
	end         uint64
	packageSize uint64
}

// DefaultPackageSize is spec.md §4.11's recommended workpackage size.
const DefaultPackageSize = 50000

// NewDispenser creates a dispenser over [0, end) with the given
// package size (0 selects DefaultPackageSize).
func NewDispenser(end uint64, packageSize uint64) *Dispenser {
	if packageSize == 0 {
		packageSize = DefaultPackageSize
	}
	return &Dispenser{end: end, packageSize: packageSize}
}

// NewDispenserForIndexes creates a dispenser that hands out positions
// within a pre-materialised index slice rather than a dense range —
// used for fixpoint iterations after the first, where only candidate
// indices are scheduled (spec.md §4.11 step 1).
func NewDispenserForIndexes(indexes []uint64, packageSize uint64) *IndexDispenser {
	if packageSize == 0 {
		packageSize = DefaultPackageSize
	}
	return &IndexDispenser{indexes: indexes, packageSize: packageSize}
}

// GetNextPackage returns the next [a,b) range, or ok=false when the
// dispenser is exhausted.
func (d *Dispenser) GetNextPackage() (a, b uint64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= d.end {
		return 0, 0, false
	}
	a = d.next
	b = a + d.packageSize
	if b > d.end {
		b = d.end
	}
	d.next = b
	return a, b, true
}

// IndexDispenser is the same dispatch discipline over a pre-computed
// slice of indices (not necessarily contiguous).
type IndexDispenser struct {
	mu          sync.Mutex
	indexes     []uint64
	next        int
	packageSize uint64
}

// GetNextPackage returns the next slice of up to packageSize indices,
// or ok=false when exhausted.
func (d *IndexDispenser) GetNextPackage() (pkg []uint64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.indexes) {
		return nil, false
	}
	end := d.next + int(d.packageSize)
	if end > len(d.indexes) {
		end = len(d.indexes)
	}
	pkg = d.indexes[d.next:end]
	d.next = end
	return pkg, true
}
