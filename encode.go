package delbin

// Encode runs the two-phase driver described in spec §4.5 and §9: phase
// one places every field whose initializer doesn't touch `@self`
// (zero-filling the rest), phase two backfills the self-referencing
// fields — CRCs and hashes over the struct's own freshly produced bytes —
// in declaration order. There is deliberately no fixed-point iteration:
// a self-referencing field is evaluated exactly once, against whatever
// the buffer holds at that point, which is correct as long as no earlier
// self-referencing field's range reaches into a later one's own bytes
// (checked below, E02008).
//
// Grounded on clarete-langlang's vm_encoder.go plan-then-execute shape:
// lay everything out first, then walk a fixed instruction sequence rather
// than re-deriving structure while encoding.
func Encode(a *Analysis, layout *Layout, env *Environment, sections *SectionStore) ([]byte, []Warning, error) {
	buf := make([]byte, layout.TotalSize)
	endian := LittleEndian
	if a.File.HasEndian {
		endian = a.File.Endian
	}

	ctx := &evalContext{env: env, sections: sections, analysis: a}

	var warnings []Warning
	var selfFields []*FieldDecl

	for _, field := range a.FieldOrder {
		if field.selfRef {
			selfFields = append(selfFields, field)
			continue
		}
		w, err := storeField(ctx, field, buf, endian)
		if err != nil {
			return nil, nil, err
		}
		if w != nil {
			warnings = append(warnings, *w)
		}
	}

	if err := checkSelfRangeOrdering(a, selfFields, layout.TotalSize); err != nil {
		return nil, nil, err
	}

	ctx.allowSelf = true
	ctx.selfBuf = buf
	for _, field := range selfFields {
		w, err := storeField(ctx, field, buf, endian)
		if err != nil {
			return nil, nil, err
		}
		if w != nil {
			warnings = append(warnings, *w)
		}
	}

	sections.set(a.File.Struct.Name, buf)
	return buf, warnings, nil
}

// storeField evaluates field's initializer (or leaves its region zeroed
// if it has none) and writes the result into buf.
func storeField(ctx *evalContext, field *FieldDecl, buf []byte, endian Endian) (*Warning, error) {
	region := buf[field.Offset : field.Offset+field.Size]
	if field.Init == nil {
		return nil, nil
	}

	if field.Type.IsArray {
		return storeArrayField(ctx, field, region, endian)
	}
	v, err := evalExpr(ctx, field.Init)
	if err != nil {
		return nil, err
	}
	return storeScalar(region, field.Type.Scalar, v, endian, field.Init.Span())
}

func storeArrayField(ctx *evalContext, field *FieldDecl, region []byte, endian Endian) (*Warning, error) {
	elemWidth := field.Type.Scalar.Width()

	if lit, ok := field.Init.(*ArrayLit); ok {
		return storeArrayLiteral(ctx, field, lit, region, elemWidth, endian)
	}

	v, err := evalExpr(ctx, field.Init)
	if err != nil {
		return nil, err
	}
	if v.Kind == KindBytes {
		return storeByteString(field, v.Bytes, region)
	}
	// A scalar-shaped builtin result (e.g. a CRC) assigned directly to a
	// byte array: encode it across the whole region using the struct's
	// declared endianness rather than per-element.
	width := len(region)
	if width > 8 {
		return nil, newErr(ErrTypeMismatch, field.Init.Span(), "a scalar value can't fill a %d-byte array region", width)
	}
	raw := v.AsUint64()
	if width < 8 && raw > uint64(1)<<uint(width*8)-1 {
		return nil, newErr(ErrWidthOverflow, field.Init.Span(), "value %d does not fit in a %d-byte array region", raw, width)
	}
	putScalar(region, raw, width, endian)
	return nil, nil
}

func storeArrayLiteral(ctx *evalContext, field *FieldDecl, lit *ArrayLit, region []byte, elemWidth int, endian Endian) (*Warning, error) {
	n := len(region) / elemWidth

	if lit.Repeat {
		elemVal, err := evalExpr(ctx, lit.RepeatElem)
		if err != nil {
			return nil, err
		}
		count := uint64(n)
		if !lit.CountIsUnderscore {
			cv, err := evalExpr(ctx, lit.RepeatCount)
			if err != nil {
				return nil, err
			}
			count = cv.AsUint64()
		}
		// A count short of the field's length leaves the tail zeroed.
		for i := 0; i < n && uint64(i) < count; i++ {
			if _, err := storeScalar(region[i*elemWidth:(i+1)*elemWidth], field.Type.Scalar, elemVal, endian, lit.Sp); err != nil {
				return nil, err
			}
		}
		if count > uint64(n) {
			w := newWarn(WarnValueTruncated, lit.Sp,
				"repeat count %d for field `%s` exceeds its %d elements, truncated", count, field.Name, n)
			return &w, nil
		}
		return nil, nil
	}

	if len(lit.Elems) != n {
		return nil, newErr(ErrInvalidArraySize, lit.Sp,
			"array literal has %d elements but field `%s` holds %d", len(lit.Elems), field.Name, n)
	}
	for i, elem := range lit.Elems {
		v, err := evalExpr(ctx, elem)
		if err != nil {
			return nil, err
		}
		if _, err := storeScalar(region[i*elemWidth:(i+1)*elemWidth], field.Type.Scalar, v, endian, elem.Span()); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// storeByteString copies a byte/string value into a fixed-size region,
// zero-padding a short value and truncating (with W03001) a long one.
func storeByteString(field *FieldDecl, data []byte, region []byte) (*Warning, error) {
	n := copy(region, data)
	for i := n; i < len(region); i++ {
		region[i] = 0
	}
	if len(data) > len(region) {
		w := newWarn(WarnStringTruncated, field.Init.Span(),
			"value for field `%s` is %d bytes, truncated to fit its %d-byte region", field.Name, len(data), len(region))
		return &w, nil
	}
	return nil, nil
}

func storeScalar(region []byte, kind ScalarKind, v Value, endian Endian, sp Span) (*Warning, error) {
	width := kind.Width()
	if v.Kind == KindBytes {
		return nil, newErr(ErrTypeMismatch, sp, "expected a %d-byte integer, found a byte sequence", width)
	}

	raw := v.AsUint64()
	if kind.Signed() {
		sv := int64(raw)
		if v.Kind == KindInt {
			sv = v.Int
		}
		lo, hi := signedRange(width)
		if sv < lo || sv > hi {
			return nil, newErr(ErrIntegerOverflow, sp, "value %d does not fit in a %d-byte signed integer", sv, width)
		}
		raw = uint64(sv)
	} else if width < 8 {
		limit := uint64(1)<<uint(width*8) - 1
		if raw > limit {
			return nil, newErr(ErrWidthOverflow, sp, "value %d does not fit in a %d-byte unsigned integer", raw, width)
		}
	}

	putScalar(region, raw, width, endian)
	return nil, nil
}

func signedRange(width int) (int64, int64) {
	bits := uint(width * 8)
	hi := int64(1)<<(bits-1) - 1
	lo := -hi - 1
	return lo, hi
}

// putScalar encodes width bytes of v into dst under endian. Only the
// byte ordering changes with endian — the value's width and sign were
// already resolved by the caller (spec §8 property P4).
func putScalar(dst []byte, v uint64, width int, endian Endian) {
	for i := 0; i < width; i++ {
		var shift uint
		if endian == BigEndian {
			shift = uint(width-1-i) * 8
		} else {
			shift = uint(i) * 8
		}
		dst[i] = byte(v >> shift)
	}
}

type selfSpan struct{ start, end int }

// collectSelfSpans walks e for every `@self` range it touches, resolving
// HasBrackets bounds to concrete byte offsets and defaulting to the whole
// buffer otherwise. A field-relative end bound (`@self[..field]`)
// resolves to that field's static layout offset, the same way
// `@offsetof` does — the only bound that can't reach here is a
// field-relative start bound, rejected during semantic checking.
func collectSelfSpans(a *Analysis, e Expr, total int, out *[]selfSpan) {
	switch n := e.(type) {
	case *UnaryExpr:
		collectSelfSpans(a, n.X, total, out)
	case *BinaryExpr:
		collectSelfSpans(a, n.X, total, out)
		collectSelfSpans(a, n.Y, total, out)
	case *ArrayLit:
		if n.Repeat {
			collectSelfSpans(a, n.RepeatElem, total, out)
		} else {
			for _, el := range n.Elems {
				collectSelfSpans(a, el, total, out)
			}
		}
	case *CallExpr:
		for _, arg := range n.Args {
			if r, ok := arg.(*RangeArg); ok && r.IsSelf {
				start, end := 0, total
				if r.HasBrackets {
					if r.Start.Present {
						start = int(r.Start.Number)
					}
					if r.End.Present {
						if r.End.IsIdent {
							if field, ok := a.FieldIndex[r.End.Ident]; ok {
								end = field.Offset
							}
						} else {
							end = int(r.End.Number)
						}
					}
				}
				*out = append(*out, selfSpan{start, end})
				continue
			}
			if expr, ok := arg.(Expr); ok {
				collectSelfSpans(a, expr, total, out)
			}
		}
	}
}

// checkSelfRangeOrdering rejects schemas where an earlier-declared
// self-referencing field's range reaches into a later-declared
// self-referencing field's own byte region — phase two processes fields
// in declaration order, so that later field's bytes would still be zero
// when the earlier one reads them (spec §8's circular-dependency
// scenario).
func checkSelfRangeOrdering(a *Analysis, selfFields []*FieldDecl, total int) error {
	for i, f := range selfFields {
		var spans []selfSpan
		collectSelfSpans(a, f.Init, total, &spans)
		for _, sp := range spans {
			for j := i + 1; j < len(selfFields); j++ {
				later := selfFields[j]
				if sp.start < later.Offset+later.Size && later.Offset < sp.end {
					return newErr(ErrCircularDependency, f.NameSpan,
						"field `%s` depends on field `%s`'s bytes before they're computed", f.Name, later.Name)
				}
			}
		}
	}
	return nil
}
