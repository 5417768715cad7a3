package fieldspec

// FNV-1a 64-bit constants. Hash mixes each descriptor's contribution,
// in declaration order.
const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// Hash computes the deep hash of the record at base according to spec.
func Hash(src Source, base uint64, spec *Spec) uint64 {
	h := uint64(fnvOffset)

	for _, f := range spec.Fields {
		if f.Kind == KindStop {
			break
		}

		h = hashField(src, base, f, h)
	}

	return h
}

func hashField(src Source, base uint64, f Field, h uint64) uint64 {
	switch f.Kind {
	case KindPrimitive:
		return mixBytes(h, src.ReadAt(base+uint64(f.Offset), int(f.ItemSize)))

	case KindString:
		ptr := readPtr(src, base, f)
		if ptr == 0 {
			return mixBytes(h, nil)
		}

		s, _ := CString(src, ptr)

		return mixBytes(h, s)

	case KindPointer:
		ptr := readPtr(src, base, f)
		if ptr == 0 || f.Sub == nil {
			return mixBytes(h, nil)
		}

		for i := range f.Length {
			recBase := ptr + uint64(i)*uint64(f.ItemSize)
			h = mixUint64(h, Hash(src, recBase, f.Sub))
		}

		return h

	case KindArray:
		ptr := readPtr(src, base, f)
		length := leUint32(src.ReadAt(base+uint64(f.LengthOffset), 4))

		if ptr == 0 || f.Sub == nil {
			length = 0
		}

		h = mixUint64(h, uint64(length))

		for i := range length {
			recBase := ptr + uint64(i)*uint64(f.ItemSize)
			h = mixUint64(h, Hash(src, recBase, f.Sub))
		}

		return h

	case KindStop:
		return h

	default:
		return h
	}
}

func mixBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}

	return h
}

func mixUint64(h uint64, v uint64) uint64 {
	for i := range 8 {
		h ^= (v >> (8 * i)) & 0xff
		h *= fnvPrime
	}

	return h
}
