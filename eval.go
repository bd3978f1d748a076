package delbin

// evalContext is the explicit state threaded through every expression
// evaluation (spec §9: "context passed explicitly, not global state").
// selfBuf/allowSelf are only populated once the layout planner has sized
// the struct and the encoder has entered its self-referencing phase;
// before that, any `@self` range is out of reach by construction (the
// semantic analyzer already validated that ranges resolve to either a
// known section or `@self`, so no further gating is needed here beyond
// allowSelf).
type evalContext struct {
	env       *Environment
	sections  *SectionStore
	analysis  *Analysis
	allowSelf bool
	selfBuf   []byte

	// laidOut restricts `@offsetof` during layout planning to fields
	// already placed by the single forward pass; nil once layout is
	// complete, since every field's offset is then valid to read.
	laidOut map[string]bool
}

// evalExpr folds e down to a single Value. Array literals have no single
// Value representation — encode.go walks their elements directly instead
// of routing them through here.
func evalExpr(ctx *evalContext, e Expr) (Value, error) {
	switch n := e.(type) {
	case *IntLit:
		return UintValue(n.Value, 8), nil
	case *StringLit:
		return BytesValue([]byte(n.Value)), nil
	case *EnvRef:
		return lookupEnv(ctx, n.Name, n.Span())
	case *IdentExpr:
		return lookupEnv(ctx, n.Name, n.Span())
	case *UnaryExpr:
		x, err := evalExpr(ctx, n.X)
		if err != nil {
			return Value{}, err
		}
		return UintValue(^x.AsUint64(), 8), nil
	case *BinaryExpr:
		return evalBinary(ctx, n)
	case *CallExpr:
		return evalCall(ctx, n)
	default:
		return Value{}, newErrNoSpan(ErrComputationFailed, "unsupported expression node %T", e)
	}
}

func lookupEnv(ctx *evalContext, name string, sp Span) (Value, error) {
	if v, ok := ctx.env.LookupInt(name); ok {
		return UintValue(v, 8), nil
	}
	if v, ok := ctx.env.LookupString(name); ok {
		return BytesValue([]byte(v)), nil
	}
	return Value{}, newErr(ErrUndefinedVariable, sp, "undefined environment variable `%s`", name)
}

func evalBinary(ctx *evalContext, n *BinaryExpr) (Value, error) {
	x, err := evalExpr(ctx, n.X)
	if err != nil {
		return Value{}, err
	}
	y, err := evalExpr(ctx, n.Y)
	if err != nil {
		return Value{}, err
	}
	xv, yv := x.AsUint64(), y.AsUint64()
	switch n.Op {
	case "|":
		return UintValue(xv|yv, 8), nil
	case "&":
		return UintValue(xv&yv, 8), nil
	case "+":
		return UintValue(xv+yv, 8), nil
	case "-":
		return UintValue(xv-yv, 8), nil
	case "<<":
		if yv >= 64 {
			return Value{}, newErr(ErrShiftOverflow, n.Sp, "shift amount %d is out of range for a 64-bit value", yv)
		}
		return UintValue(xv<<yv, 8), nil
	case ">>":
		if yv >= 64 {
			return Value{}, newErr(ErrShiftOverflow, n.Sp, "shift amount %d is out of range for a 64-bit value", yv)
		}
		return UintValue(xv>>yv, 8), nil
	default:
		return Value{}, newErrNoSpan(ErrComputationFailed, "unknown operator `%s`", n.Op)
	}
}

func evalCall(ctx *evalContext, c *CallExpr) (Value, error) {
	switch c.Name {
	case "offsetof":
		ident := c.Args[0].(*IdentExpr)
		field, ok := ctx.analysis.FieldIndex[ident.Name]
		if !ok {
			return Value{}, newErr(ErrUndefinedField, ident.Sp, "undefined field `%s`", ident.Name)
		}
		if ctx.laidOut != nil && !ctx.laidOut[ident.Name] {
			return Value{}, newErr(ErrInvalidReference, ident.Sp,
				"`@offsetof(%s)` refers to a field that hasn't been laid out yet", ident.Name)
		}
		return UintValue(uint64(field.Offset), 8), nil

	case "sizeof":
		ident := c.Args[0].(*IdentExpr)
		data, ok := ctx.sections.Get(ident.Name)
		if !ok {
			return Value{}, newErr(ErrUndefinedSection, ident.Sp, "undefined section `%s`", ident.Name)
		}
		return UintValue(uint64(len(data)), 8), nil

	case "bytes":
		data, err := evalRange(ctx, c.Args[0])
		if err != nil {
			return Value{}, err
		}
		return BytesValue(append([]byte(nil), data...)), nil

	case "crc32":
		data, err := evalRange(ctx, c.Args[0])
		if err != nil {
			return Value{}, err
		}
		return crcByVariant("crc32", data)

	case "crc16":
		data, err := evalRange(ctx, c.Args[0])
		if err != nil {
			return Value{}, err
		}
		return crcByVariant("crc16", data)

	case "crc":
		variant := c.Args[0].(*StringLit).Value
		data, err := evalRange(ctx, c.Args[1])
		if err != nil {
			return Value{}, err
		}
		return crcByVariant(variant, data)

	case "sha256":
		data, err := evalRange(ctx, c.Args[0])
		if err != nil {
			return Value{}, err
		}
		return hashByAlgo("sha256", data)

	case "hash":
		algo := c.Args[0].(*StringLit).Value
		data, err := evalRange(ctx, c.Args[1])
		if err != nil {
			return Value{}, err
		}
		return hashByAlgo(algo, data)

	default:
		return Value{}, newErr(ErrUndefinedFunction, c.Sp, "unknown builtin `@%s`", c.Name)
	}
}

// evalRange resolves a range/section argument to a byte slice (spec
// §4.4's range resolution): either a caller-supplied section, or a slice
// of the struct's own bytes via `@self`/`@self[a..b]` with numeric bounds.
func evalRange(ctx *evalContext, arg Arg) ([]byte, error) {
	switch r := arg.(type) {
	case *RangeArg:
		if !ctx.allowSelf {
			return nil, newErrNoSpan(ErrComputationFailed, "`@self` can't be resolved before the struct's layout is known")
		}
		return resolveSelfRange(ctx, r)
	case *IdentExpr:
		data, ok := ctx.sections.Get(r.Name)
		if !ok {
			return nil, newErr(ErrUndefinedSection, r.Sp, "undefined section `%s`", r.Name)
		}
		return data, nil
	default:
		return nil, newErrNoSpan(ErrComputationFailed, "expected a range or section name argument")
	}
}

// resolveSelfRange resolves a numeric or field-relative-end `@self` range
// to a byte slice of ctx.selfBuf. `@self[..field]` resolves its end bound
// to field's static layout offset, the same way `@offsetof` does (spec
// §4.4: `@self[..field]` means `[0, offsetof(field))`) — this is the
// self-referencing-CRC idiom (a checksum field ranging up to its own
// start) spec §8 calls the signature design point. `@self[field..]` (a
// field-relative START bound) remains reserved/unimplemented.
func resolveSelfRange(ctx *evalContext, r *RangeArg) ([]byte, error) {
	buf := ctx.selfBuf
	start, end := 0, len(buf)
	if r.HasBrackets {
		if r.Start.Present {
			if r.Start.IsIdent {
				return nil, newErr(ErrNotImplemented, r.Start.Sp, "field-relative range bounds like `@self[%s..]` are not yet implemented", r.Start.Ident)
			}
			start = int(r.Start.Number)
		}
		if r.End.Present {
			if r.End.IsIdent {
				field, ok := ctx.analysis.FieldIndex[r.End.Ident]
				if !ok {
					return nil, newErr(ErrUndefinedField, r.End.Sp, "undefined field `%s`", r.End.Ident)
				}
				end = field.Offset
			} else {
				end = int(r.End.Number)
			}
		}
	}
	if start < 0 || end > len(buf) || start > end {
		return nil, newErr(ErrInvalidRange, r.Sp, "range [%d..%d] is out of bounds for a %d-byte struct", start, end, len(buf))
	}
	return buf[start:end], nil
}
