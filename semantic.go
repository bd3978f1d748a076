package delbin

// Analysis is the semantic analyzer's output: a validated, cross
// referenced structure ready for the layout planner. Grounded on
// clarete-langlang's GrammarTransformations pipeline (api.go) — a
// sequence of named passes, each returning on the first error — and on
// query_analysis.go's one-pass-per-concern shape (uniqueness, then
// references, then the dependency graph), adapted from analyzing a PEG
// grammar to analyzing a binary-struct schema.
type Analysis struct {
	File       *File
	FieldIndex map[string]*FieldDecl
	FieldOrder []*FieldDecl
}

var crcVariants = map[string]bool{
	"crc32": true, "crc32-mpeg2": true, "crc16": true, "crc16-modbus": true,
}

var hashAlgos = map[string]bool{
	"sha256": true, "sha1": true, "md5": true,
}

var knownBuiltins = map[string]bool{
	"bytes": true, "sizeof": true, "offsetof": true,
	"crc32": true, "crc16": true, "crc": true,
	"sha256": true, "hash": true,
}

// Analyze runs every semantic check over f against env and sections. It
// stops at the first error, so semantic problems are always reported
// before layout or evaluation ones (spec §7).
func Analyze(f *File, env *Environment, sections *SectionStore) (*Analysis, error) {
	a := &Analysis{File: f, FieldIndex: map[string]*FieldDecl{}, FieldOrder: f.Struct.Fields}

	if err := a.checkUniqueness(); err != nil {
		return nil, err
	}
	if err := a.checkAttrs(); err != nil {
		return nil, err
	}

	for _, field := range a.FieldOrder {
		if field.Type.IsArray {
			if err := a.checkExpr(field.Type.Length, env, sections); err != nil {
				return nil, err
			}
		}
		if field.Init != nil {
			if err := a.checkExpr(field.Init, env, sections); err != nil {
				return nil, err
			}
			if containsSelfRange(field.Init) {
				field.selfRef = true
			}
		}
	}

	if err := a.checkCycles(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Analysis) checkUniqueness() error {
	for _, field := range a.FieldOrder {
		if _, ok := a.FieldIndex[field.Name]; ok {
			return newErr(ErrDuplicateField, field.NameSpan, "duplicate field `%s`", field.Name)
		}
		a.FieldIndex[field.Name] = field
	}
	return nil
}

func (a *Analysis) checkAttrs() error {
	attr := a.File.Struct.Attr
	if attr.HasAlign && !attr.Packed {
		return newErr(ErrInvalidSyntax, attr.AlignSpan, "`@align(n)` requires `@packed`")
	}
	if attr.HasAlign && attr.Align <= 0 {
		return newErr(ErrInvalidSyntax, attr.AlignSpan, "`@align(n)` requires a positive alignment")
	}
	return nil
}

func (a *Analysis) checkExpr(e Expr, env *Environment, sections *SectionStore) error {
	switch n := e.(type) {
	case *IntLit, *StringLit:
		return nil
	case *EnvRef:
		if !env.Has(n.Name) {
			return newErr(ErrUndefinedVariable, n.Sp, "undefined environment variable `%s`", n.Name).
				WithHint("pass a value for this variable in the environment map")
		}
		return nil
	case *IdentExpr:
		// Bare identifiers in a general expression position are
		// environment lookups only, never field or section aliases
		// (those have their own builtins: @offsetof, @sizeof).
		if !env.Has(n.Name) {
			return newErr(ErrUndefinedVariable, n.Sp, "undefined environment variable `%s`", n.Name)
		}
		return nil
	case *UnaryExpr:
		return a.checkExpr(n.X, env, sections)
	case *BinaryExpr:
		if err := a.checkExpr(n.X, env, sections); err != nil {
			return err
		}
		return a.checkExpr(n.Y, env, sections)
	case *ArrayLit:
		if n.Repeat {
			if err := a.checkExpr(n.RepeatElem, env, sections); err != nil {
				return err
			}
			if !n.CountIsUnderscore {
				return a.checkExpr(n.RepeatCount, env, sections)
			}
			return nil
		}
		for _, el := range n.Elems {
			if err := a.checkExpr(el, env, sections); err != nil {
				return err
			}
		}
		return nil
	case *CallExpr:
		return a.checkCall(n, env, sections)
	default:
		return newErrNoSpan(ErrInvalidSyntax, "unsupported expression node %T", e)
	}
}

func (a *Analysis) checkCall(c *CallExpr, env *Environment, sections *SectionStore) error {
	if !knownBuiltins[c.Name] {
		return newErr(ErrUndefinedFunction, c.Sp, "unknown builtin `@%s`", c.Name).
			WithHint("known builtins: bytes, sizeof, offsetof, crc32, crc16, crc, sha256, hash")
	}
	switch c.Name {
	case "offsetof":
		if len(c.Args) != 1 {
			return newErr(ErrInvalidReference, c.Sp, "`@offsetof` takes exactly one field name")
		}
		ident, ok := c.Args[0].(*IdentExpr)
		if !ok {
			return newErr(ErrInvalidReference, c.Args[0].Span(), "`@offsetof` argument must be a field name")
		}
		if _, ok := a.FieldIndex[ident.Name]; !ok {
			return newErr(ErrUndefinedField, ident.Sp, "undefined field `%s`", ident.Name)
		}
		return nil

	case "sizeof":
		if len(c.Args) != 1 {
			return newErr(ErrInvalidReference, c.Sp, "`@sizeof` takes exactly one section name")
		}
		ident, ok := c.Args[0].(*IdentExpr)
		if !ok {
			return newErr(ErrInvalidReference, c.Args[0].Span(), "`@sizeof` argument must be a section name")
		}
		if _, ok := sections.Get(ident.Name); !ok {
			return newErr(ErrUndefinedSection, ident.Sp, "undefined section `%s`", ident.Name)
		}
		return nil

	case "bytes", "crc32", "crc16":
		if c.Name == "crc32" && len(c.Args) > 1 {
			return newErr(ErrNotImplemented, c.Sp, "multi-section range arguments to `@crc32` are not implemented")
		}
		if len(c.Args) != 1 {
			return newErr(ErrInvalidReference, c.Sp, "`@%s` takes exactly one range argument", c.Name)
		}
		return a.checkRangeArg(c.Args[0], sections)

	case "sha256":
		if len(c.Args) > 1 {
			return newErr(ErrNotImplemented, c.Sp, "multi-section range arguments to `@sha256` are not implemented")
		}
		if len(c.Args) != 1 {
			return newErr(ErrInvalidReference, c.Sp, "`@sha256` takes exactly one range argument")
		}
		return a.checkRangeArg(c.Args[0], sections)

	case "crc", "hash":
		if len(c.Args) != 2 {
			return newErr(ErrInvalidReference, c.Sp, "`@%s` takes a variant name and a range argument", c.Name)
		}
		variant, ok := c.Args[0].(*StringLit)
		if !ok {
			return newErr(ErrInvalidReference, c.Args[0].Span(), "`@%s`'s first argument must be a string naming the variant", c.Name)
		}
		if c.Name == "crc" && !crcVariants[variant.Value] {
			return newErr(ErrInvalidReference, variant.Sp, "unknown CRC variant `%s`", variant.Value).
				WithHint("known variants: crc32, crc32-mpeg2, crc16, crc16-modbus")
		}
		if c.Name == "hash" && !hashAlgos[variant.Value] {
			return newErr(ErrInvalidReference, variant.Sp, "unknown hash algorithm `%s`", variant.Value).
				WithHint("known algorithms: sha256, sha1, md5")
		}
		return a.checkRangeArg(c.Args[1], sections)

	default:
		return nil
	}
}

func (a *Analysis) checkRangeArg(arg Arg, sections *SectionStore) error {
	switch r := arg.(type) {
	case *RangeArg:
		// `@self[field..]` (an open-ended start bound naming a field) is
		// the one field-relative form spec §9 actually reserves as not yet
		// implemented. `@self[..field]` (a field as the END bound) is
		// normatively defined by spec §4.4 as `[0, offsetof(field))` and is
		// exactly the self-referencing-CRC idiom spec §8 names as the
		// signature design point, so it resolves like `@offsetof` instead
		// of being rejected.
		if r.Start.Present && r.Start.IsIdent {
			return newErr(ErrNotImplemented, r.Start.Sp, "field-relative range bounds like `@self[%s..]` are not yet implemented", r.Start.Ident).
				WithHint("use a numeric byte offset instead")
		}
		if r.End.Present && r.End.IsIdent {
			if _, ok := a.FieldIndex[r.End.Ident]; !ok {
				return newErr(ErrUndefinedField, r.End.Sp, "undefined field `%s`", r.End.Ident)
			}
		}
		return nil
	case *IdentExpr:
		if _, ok := sections.Get(r.Name); !ok {
			return newErr(ErrUndefinedSection, r.Sp, "undefined section `%s`", r.Name)
		}
		return nil
	default:
		return newErr(ErrInvalidReference, arg.Span(), "expected a range or section name argument")
	}
}

// containsSelfRange reports whether e touches `@self` anywhere in its
// tree, meaning the field it initializes can't be resolved until the rest
// of the struct's bytes exist (spec §4.2's self-referencing fields,
// deferred to the encoder's second phase).
func containsSelfRange(e Expr) bool {
	found := false
	var walk func(Expr)
	walk = func(e Expr) {
		if found || e == nil {
			return
		}
		switch n := e.(type) {
		case *UnaryExpr:
			walk(n.X)
		case *BinaryExpr:
			walk(n.X)
			walk(n.Y)
		case *ArrayLit:
			if n.Repeat {
				walk(n.RepeatElem)
				if !n.CountIsUnderscore {
					walk(n.RepeatCount)
				}
			} else {
				for _, el := range n.Elems {
					walk(el)
				}
			}
		case *CallExpr:
			for _, arg := range n.Args {
				if r, ok := arg.(*RangeArg); ok && r.IsSelf {
					found = true
					return
				}
				if expr, ok := arg.(Expr); ok {
					walk(expr)
				}
			}
		}
	}
	walk(e)
	return found
}

// checkCycles builds the field dependency graph (arena+edges, per spec
// §9) from `@offsetof` and self-range field-name bounds, then runs a
// three-color DFS to reject any cycle (spec §8's circular-dependency
// scenario, E02008) other than a self-referencing field's edge to itself. Genuine value cycles can't otherwise arise here:
// fields only ever reference each other's static layout offset, never
// each other's computed value.
func (a *Analysis) checkCycles() error {
	graph := map[string][]string{}
	for _, f := range a.FieldOrder {
		edges := map[string]bool{}
		if f.Type.IsArray {
			collectFieldRefs(f.Type.Length, edges)
		}
		if f.Init != nil {
			collectFieldRefs(f.Init, edges)
		}
		for dep := range edges {
			// A self-referencing field naming itself (`@self[..crc]` on
			// field `crc`) is resolved by the encoder's second phase, not
			// a layout cycle.
			if dep == f.Name && f.selfRef {
				continue
			}
			graph[f.Name] = append(graph[f.Name], dep)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		for _, dep := range graph[name] {
			switch color[dep] {
			case gray:
				return newErr(ErrCircularDependency, a.FieldIndex[name].Span,
					"circular dependency involving field `%s`", name)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for _, f := range a.FieldOrder {
		if color[f.Name] == white {
			if err := visit(f.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectFieldRefs(e Expr, out map[string]bool) {
	switch n := e.(type) {
	case *UnaryExpr:
		collectFieldRefs(n.X, out)
	case *BinaryExpr:
		collectFieldRefs(n.X, out)
		collectFieldRefs(n.Y, out)
	case *ArrayLit:
		if n.Repeat {
			collectFieldRefs(n.RepeatElem, out)
			if !n.CountIsUnderscore {
				collectFieldRefs(n.RepeatCount, out)
			}
		} else {
			for _, el := range n.Elems {
				collectFieldRefs(el, out)
			}
		}
	case *CallExpr:
		// `@self[field..]` start bounds are rejected during semantic
		// checking (see checkRangeArg), so the only field-to-field edges
		// that can reach here are an `@offsetof` reference or a
		// `@self[..field]` end bound.
		if n.Name == "offsetof" && len(n.Args) == 1 {
			if ident, ok := n.Args[0].(*IdentExpr); ok {
				out[ident.Name] = true
			}
		}
		for _, arg := range n.Args {
			if r, ok := arg.(*RangeArg); ok {
				if r.End.Present && r.End.IsIdent {
					out[r.End.Ident] = true
				}
				continue
			}
			if expr, ok := arg.(Expr); ok {
				collectFieldRefs(expr, out)
			}
		}
	}
}
