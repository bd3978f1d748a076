package delbin

// Layout is the struct's concrete placement: every field's Offset/Size is
// filled in directly on the FieldDecl, and Layout carries the totals
// (spec §4.3 Layout Planner).
type Layout struct {
	TotalSize int
	PadSize   int // trailing padding bytes added to satisfy @align(n)
}

// PlanLayout walks a.FieldOrder once, in declaration order, assigning
// each field's Offset and Size. Array lengths are constant-folded through
// the expression evaluator restricted to env/section state and the
// offsets of fields already placed — grounded on scigolib-hdf5's
// datatype.go cursor-advancing offset builder, generalized from HDF5's
// fixed type catalog to spec §6.1's scalar/array type grammar.
func PlanLayout(a *Analysis, env *Environment, sections *SectionStore) (*Layout, error) {
	ctx := &evalContext{env: env, sections: sections, analysis: a, laidOut: map[string]bool{}}
	packed := a.File.Struct.Attr.Packed

	cursor := 0
	for _, field := range a.FieldOrder {
		width := field.Type.Scalar.Width()
		if !packed {
			cursor = alignUp(cursor, width)
		}
		field.Offset = cursor

		if field.Type.IsArray {
			n, err := evalArrayLength(ctx, field)
			if err != nil {
				return nil, err
			}
			field.Size = width * n
		} else {
			field.Size = width
		}
		cursor += field.Size
		ctx.laidOut[field.Name] = true
	}

	layout := &Layout{TotalSize: cursor}
	attr := a.File.Struct.Attr
	if attr.HasAlign {
		aligned := alignUp(cursor, attr.Align)
		layout.PadSize = aligned - cursor
		layout.TotalSize = aligned
	}
	return layout, nil
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// maxArrayLength bounds array sizes to something a schema could plausibly
// mean, catching a runaway env-derived length before it tries to allocate
// gigabytes (spec §4.3 edge cases).
const maxArrayLength = 1 << 20

func evalArrayLength(ctx *evalContext, field *FieldDecl) (int, error) {
	v, err := evalExpr(ctx, field.Type.Length)
	if err != nil {
		return 0, err
	}
	n := v.AsUint64()
	if n == 0 || n > maxArrayLength {
		return 0, newErr(ErrInvalidArraySize, field.Type.Length.Span(),
			"array length %d is out of range for field `%s`", n, field.Name)
	}
	return int(n), nil
}
