package heap

import "fmt"

// classSize returns the payload size in bytes served by size class i.
func classSize(i int) uint64 {
	return uint64(minBlockSize) << i //nolint:gosec
}

// classFor returns the smallest size class able to hold n bytes.
func classFor(n uint64) (int, error) {
	for i := range numSizeClasses {
		if classSize(i) >= n {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: requested size %d exceeds max block size %d",
		ErrOutOfMemory, n, classSize(numSizeClasses-1))
}

// Allocate returns the offset (relative to Base) of a zero-initialised
// block of at least n bytes. Writer only.
func (h *Heap) Allocate(n int) (uint64, error) {
	if err := h.requireRole(RoleWriter); err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: negative size", ErrOutOfMemory)
	}

	return h.allocateLocked(uint64(n)) //nolint:gosec
}

// AllocateArray returns the offset of a zero-initialised array of count
// elements of elemSize bytes each. Writer only.
func (h *Heap) AllocateArray(elemSize, count int) (uint64, error) {
	if elemSize < 0 || count < 0 {
		return 0, fmt.Errorf("%w: negative size/count", ErrOutOfMemory)
	}

	return h.Allocate(elemSize * count)
}

// AllocateString copies bytes into a new NUL-terminated heap string and
// returns its offset. Writer only.
func (h *Heap) AllocateString(data []byte) (uint64, error) {
	off, err := h.Allocate(len(data) + 1)
	if err != nil {
		return 0, err
	}

	copy(h.data[off:off+uint64(len(data))], data)
	h.data[off+uint64(len(data))] = 0

	return off, nil
}

// allocateLocked performs the actual class-based allocation, assuming the
// caller already holds whatever external synchronization it needs (the
// heap itself is single-threaded-writer by contract).
func (h *Heap) allocateLocked(n uint64) (uint64, error) {
	if n == 0 {
		n = 1
	}

	class, err := classFor(n)
	if err != nil {
		return 0, err
	}

	size := classSize(class)

	// Try the free list for this class first.
	head := h.freeListHead(class)
	if head != 0 {
		next := h.freeListNext(head)
		h.setFreeListHead(class, next)
		h.setBlockHeader(head, class, false, false)
		zero(h.data[head : head+size])

		return head, nil
	}

	// Bump-allocate a fresh block from the arena.
	top := h.arenaTop()
	if top == 0 {
		top = uint64(objectArenaOffset)
	}

	payloadOff := top + blockHeaderSize
	newTop := payloadOff + size

	if newTop > uint64(h.rwArenaOffset) {
		return 0, ErrOutOfMemory
	}

	h.setArenaTop(newTop)
	h.setBlockHeader(payloadOff, class, false, false)
	zero(h.data[payloadOff : payloadOff+size])
	h.blockIndex = append(h.blockIndex, payloadOff)

	return payloadOff, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// AllocateRW bump-allocates n bytes from the RW sub-arena. Never
// reclaimed. Writer only.
func (h *Heap) AllocateRW(n int) (uint64, error) {
	if err := h.requireRole(RoleWriter); err != nil {
		return 0, err
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w: non-positive size", ErrOutOfMemory)
	}

	const align = 8

	size := (uint64(n) + align - 1) &^ (align - 1) //nolint:gosec

	top := h.rwArenaTop()
	if top == 0 {
		top = uint64(h.rwArenaOffset)
	}

	newTop := top + size
	if newTop > uint64(h.rwArenaOffset)+uint64(h.rwArenaSize) {
		return 0, ErrOutOfMemory
	}

	h.setRWArenaTop(newTop)
	zero(h.data[top:newTop])

	return top, nil
}

// Collect runs one mark/sweep cycle. While the collector is disabled
// (nested Enable/Disable depth > 0) this is a no-op: it performs no work,
// and the eventual Enable call does not retroactively run it. Writer
// only.
func (h *Heap) Collect() error {
	if err := h.requireRole(RoleWriter); err != nil {
		return err
	}

	if h.collectorDisabledDepth() > 0 {
		return nil
	}

	h.mark()
	h.sweep()
	h.setTotalCollectionsRaw(h.totalCollectionsRaw() + 1)

	return nil
}

// Disable increments the collector-disable depth. Writer only.
func (h *Heap) Disable() error {
	if err := h.requireRole(RoleWriter); err != nil {
		return err
	}

	h.setCollectorDisabledDepth(h.collectorDisabledDepth() + 1)

	return nil
}

// Enable decrements the collector-disable depth. Writer only.
func (h *Heap) Enable() error {
	if err := h.requireRole(RoleWriter); err != nil {
		return err
	}

	if d := h.collectorDisabledDepth(); d > 0 {
		h.setCollectorDisabledDepth(d - 1)
	}

	return nil
}

// TotalCollections returns the number of completed Collect cycles.
func (h *Heap) TotalCollections() uint64 {
	return h.totalCollectionsRaw()
}

// mark walks the root table and, conservatively, every live block's
// payload words, marking every block transitively reachable from a root.
func (h *Heap) mark() {
	var worklist []uint64

	for i := range RootTableCapacity {
		if v := h.rootSlot(i); v != 0 {
			worklist = append(worklist, v)
		}
	}

	for len(worklist) > 0 {
		n := len(worklist) - 1
		off := worklist[n]
		worklist = worklist[:n]

		class, marked, free := h.blockHeader(off)
		if marked || free {
			continue
		}

		h.setBlockHeader(off, class, true, false)

		size := classSize(class)
		for w := uint64(0); w+8 <= size; w += 8 {
			cand := leUint64(h.data[off+w : off+w+8])
			if h.isLiveBlockStart(cand) {
				worklist = append(worklist, cand)
			}
		}
	}
}

// sweep reclaims every unmarked block back onto its size class's free
// list, and clears the mark bit on every surviving block so the next
// cycle starts clean.
func (h *Heap) sweep() {
	for _, off := range h.blockIndex {
		class, marked, free := h.blockHeader(off)
		if free {
			continue
		}

		if marked {
			h.setBlockHeader(off, class, false, false)

			continue
		}

		h.setFreeListNext(off, h.freeListHead(class))
		h.setFreeListHead(class, off)
		h.setBlockHeader(off, class, false, true)
	}
}

// isLiveBlockStart reports whether off is the payload start of a
// currently-live (allocated, unfreed) block. Used by the conservative
// marker to decide whether an arbitrary in-heap word is a real pointer.
func (h *Heap) isLiveBlockStart(off uint64) bool {
	lo, hi := 0, len(h.blockIndex)

	for lo < hi {
		mid := (lo + hi) / 2
		if h.blockIndex[mid] < off {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo >= len(h.blockIndex) || h.blockIndex[lo] != off {
		return false
	}

	_, _, free := h.blockHeader(off)

	return !free
}

// RootAdd registers ptr (an offset from Base, or 0 for NUL) in the next
// free root-table slot, starting at a rolling cursor and wrapping.
// Returns the slot index, used by the caller to build a release handle.
func (h *Heap) RootAdd(ptr uint64) (int, error) {
	if err := h.requireRole(RoleWriter); err != nil {
		return 0, err
	}

	start := h.rootCursor()

	for i := range RootTableCapacity {
		slot := (start + i) % RootTableCapacity
		if h.rootSlot(slot) == 0 {
			h.setRootSlot(slot, ptr)
			h.setRootCursor((slot + 1) % RootTableCapacity)

			return slot, nil
		}
	}

	return 0, ErrNoRootSpace
}

// RootRelease clears a previously registered root-table slot.
func (h *Heap) RootRelease(slot int) {
	if slot < 0 || slot >= RootTableCapacity {
		return
	}

	h.setRootSlot(slot, 0)
}

// leUint64 decodes 8 little-endian bytes. Local helper kept distinct from
// binary.LittleEndian.Uint64 call sites above purely for call-site
// brevity in the hot mark loop.
func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
