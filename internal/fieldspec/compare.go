package fieldspec

import "bytes"

// Compare orders the records at aBase and bBase lexicographically by
// field, in declaration order: the first field whose values differ
// decides the sign. Arrays compare only their shared prefix
// (min(lenA, lenB) records); if that prefix is equal, the shorter array
// sorts first. A NUL string/pointer sorts before any non-NUL one.
func Compare(src Source, aBase, bBase uint64, spec *Spec) int {
	for _, f := range spec.Fields {
		if f.Kind == KindStop {
			break
		}

		if c := compareField(src, aBase, bBase, f); c != 0 {
			return c
		}
	}

	return 0
}

func compareField(src Source, aBase, bBase uint64, f Field) int {
	switch f.Kind {
	case KindPrimitive:
		a := src.ReadAt(aBase+uint64(f.Offset), int(f.ItemSize))
		b := src.ReadAt(bBase+uint64(f.Offset), int(f.ItemSize))

		return bytes.Compare(a, b)

	case KindString:
		return compareStrings(src, aBase, bBase, f)

	case KindPointer:
		return compareFixedRun(src, aBase, bBase, f)

	case KindArray:
		return compareArray(src, aBase, bBase, f)

	default:
		return 0
	}
}

func compareStrings(src Source, aBase, bBase uint64, f Field) int {
	aPtr := readPtr(src, aBase, f)
	bPtr := readPtr(src, bBase, f)

	if aPtr == 0 && bPtr == 0 {
		return 0
	}

	if aPtr == 0 {
		return -1
	}

	if bPtr == 0 {
		return 1
	}

	a, _ := CString(src, aPtr)
	b, _ := CString(src, bPtr)

	return bytes.Compare(a, b)
}

func compareFixedRun(src Source, aBase, bBase uint64, f Field) int {
	aPtr := readPtr(src, aBase, f)
	bPtr := readPtr(src, bBase, f)

	if f.Sub == nil {
		return 0
	}

	if aPtr == 0 || bPtr == 0 {
		switch {
		case aPtr == bPtr:
			return 0
		case aPtr == 0:
			return -1
		default:
			return 1
		}
	}

	for i := range f.Length {
		ra := aPtr + uint64(i)*uint64(f.ItemSize)
		rb := bPtr + uint64(i)*uint64(f.ItemSize)

		if c := Compare(src, ra, rb, f.Sub); c != 0 {
			return c
		}
	}

	return 0
}

func compareArray(src Source, aBase, bBase uint64, f Field) int {
	aPtr := readPtr(src, aBase, f)
	bPtr := readPtr(src, bBase, f)

	aLen := leUint32(src.ReadAt(aBase+uint64(f.LengthOffset), 4))
	bLen := leUint32(src.ReadAt(bBase+uint64(f.LengthOffset), 4))

	if aPtr == 0 {
		aLen = 0
	}

	if bPtr == 0 {
		bLen = 0
	}

	n := aLen
	if bLen < n {
		n = bLen
	}

	if f.Sub != nil {
		for i := range n {
			ra := aPtr + uint64(i)*uint64(f.ItemSize)
			rb := bPtr + uint64(i)*uint64(f.ItemSize)

			if c := Compare(src, ra, rb, f.Sub); c != 0 {
				return c
			}
		}
	}

	switch {
	case aLen < bLen:
		return -1
	case aLen > bLen:
		return 1
	default:
		return 0
	}
}
