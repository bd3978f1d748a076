package delbin

import "fmt"

// Parser is a hand-written recursive-descent parser over the grammar in
// spec §6.1, with precedence-climbing for the expression language
// (or < and < shift < add < unary < primary). Grounded on
// clarete-langlang's grammar_parser_wirth.go hand-descent style (plain
// function per production, explicit error returns) rather than its
// PEG-VM-backed parsers — this grammar is small and fixed, so no bytecode
// layer is warranted.
type Parser struct {
	lex     *Lexer
	cur     Token
	lookTok *Token
}

func NewParser(input []byte) *Parser {
	return &Parser{lex: NewLexer(input)}
}

// ParseSchema parses schema source into a File AST.
func ParseSchema(input []byte) (*File, error) {
	return NewParser(input).Parse()
}

func (p *Parser) init() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) advance() error {
	if p.lookTok != nil {
		p.cur = *p.lookTok
		p.lookTok = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) peek() (Token, error) {
	if p.lookTok == nil {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		p.lookTok = &t
	}
	return *p.lookTok, nil
}

func (p *Parser) expect(kind TokenKind) error {
	if p.cur.Kind != kind {
		return newErr(ErrUnexpectedToken, p.cur.Span, "expected %s, found %s", kind, describeTok(p.cur))
	}
	return p.advance()
}

func describeTok(t Token) string {
	if t.Kind == TokEOF {
		return "end of input"
	}
	if t.Text != "" {
		return fmt.Sprintf("`%s`", t.Text)
	}
	return t.Kind.String()
}

var builtinNames = map[string]bool{
	"bytes": true, "sizeof": true, "offsetof": true,
	"crc32": true, "crc16": true, "crc": true,
	"sha256": true, "hash": true,
}

var reservedWords = map[string]bool{
	"struct": true, "endian": true, "packed": true, "align": true, "self": true,
}

func isReserved(name string) bool {
	if reservedWords[name] || builtinNames[name] {
		return true
	}
	_, isScalar := scalarNames[name]
	return isScalar
}

// Parse drives the whole file production: directive* struct EOF.
func (p *Parser) Parse() (*File, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	start := p.cur.Span.Start
	f := &File{}

	for p.cur.Kind == TokAt {
		endian, endianSpan, err := p.parseDirective()
		if err != nil {
			return nil, err
		}
		if f.HasEndian {
			return nil, newErr(ErrDuplicateDirective, endianSpan, "duplicate `endian` directive")
		}
		f.HasEndian = true
		f.Endian = endian
		f.EndianSpan = endianSpan
	}

	if !(p.cur.Kind == TokIdent && p.cur.Text == "struct") {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected `struct`, found %s", describeTok(p.cur))
	}
	st, err := p.parseStruct()
	if err != nil {
		return nil, err
	}
	f.Struct = st

	if p.cur.Kind != TokEOF {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "unexpected input after struct, found %s", describeTok(p.cur))
	}
	f.Span = Span{start, p.cur.Span.End}
	return f, nil
}

// directive := "@" name "=" value ";"
func (p *Parser) parseDirective() (Endian, Span, error) {
	start := p.cur.Span.Start
	if err := p.expect(TokAt); err != nil {
		return 0, Span{}, err
	}
	if p.cur.Kind != TokIdent {
		return 0, Span{}, newErr(ErrUnexpectedToken, p.cur.Span, "expected directive name")
	}
	name := p.cur.Text
	nameSpan := p.cur.Span
	if err := p.advance(); err != nil {
		return 0, Span{}, err
	}
	if name != "endian" {
		return 0, Span{}, newErr(ErrInvalidSyntax, nameSpan, "unknown directive `%s`", name)
	}
	if err := p.expect(TokEquals); err != nil {
		return 0, Span{}, err
	}
	if p.cur.Kind != TokIdent {
		return 0, Span{}, newErr(ErrUnexpectedToken, p.cur.Span, "expected `little` or `big`")
	}
	val := p.cur.Text
	valSpan := p.cur.Span
	var endian Endian
	switch val {
	case "little":
		endian = LittleEndian
	case "big":
		endian = BigEndian
	default:
		return 0, Span{}, newErr(ErrInvalidSyntax, valSpan, "endian value must be `little` or `big`, found `%s`", val)
	}
	if err := p.advance(); err != nil {
		return 0, Span{}, err
	}
	if err := p.expect(TokSemicolon); err != nil {
		return 0, Span{}, err
	}
	return endian, Span{start, valSpan.End}, nil
}

// struct := "struct" ident attr* "{" field* "}"
func (p *Parser) parseStruct() (*StructDecl, error) {
	start := p.cur.Span.Start
	if err := p.advance(); err != nil { // consume "struct"
		return nil, err
	}
	if p.cur.Kind != TokIdent {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected struct name")
	}
	name := p.cur.Text
	nameSpan := p.cur.Span
	if err := p.advance(); err != nil {
		return nil, err
	}

	var attr StructAttr
	for p.cur.Kind == TokAt {
		if err := p.parseAttr(&attr); err != nil {
			return nil, err
		}
	}

	if err := p.expect(TokLBrace); err != nil {
		return nil, err
	}

	var fields []*FieldDecl
	for p.cur.Kind != TokRBrace {
		if p.cur.Kind == TokEOF {
			return nil, newErr(ErrUnclosedBracket, p.cur.Span, "unclosed `{` in struct `%s`", name)
		}
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	end := p.cur.Span.End
	if err := p.advance(); err != nil { // consume "}"
		return nil, err
	}
	return &StructDecl{Name: name, NameSpan: nameSpan, Attr: attr, Fields: fields, Span: Span{start, end}}, nil
}

// attr := "@packed" | "@align" "(" number ")"
func (p *Parser) parseAttr(attr *StructAttr) error {
	start := p.cur.Span.Start
	if err := p.advance(); err != nil { // consume "@"
		return err
	}
	if p.cur.Kind != TokIdent {
		return newErr(ErrUnexpectedToken, p.cur.Span, "expected attribute name")
	}
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return err
	}
	switch name {
	case "packed":
		attr.Packed = true
		attr.PackedSpan = Span{start, p.cur.Span.Start}
	case "align":
		if err := p.expect(TokLParen); err != nil {
			return err
		}
		if p.cur.Kind != TokInt {
			return newErr(ErrUnexpectedToken, p.cur.Span, "expected integer in `@align(n)`")
		}
		n := p.cur.IntValue
		alignSpan := p.cur.Span
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.expect(TokRParen); err != nil {
			return err
		}
		attr.HasAlign = true
		attr.Align = int(n)
		attr.AlignSpan = alignSpan
	default:
		return newErr(ErrInvalidSyntax, Span{start, p.cur.Span.Start}, "unknown struct attribute `@%s`", name)
	}
	return nil
}

// field := ident ":" type ("=" expr)? ";"
func (p *Parser) parseField() (*FieldDecl, error) {
	start := p.cur.Span.Start
	if p.cur.Kind != TokIdent {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected field name")
	}
	name := p.cur.Text
	nameSpan := p.cur.Span
	if isReserved(name) {
		return nil, newErr(ErrInvalidSyntax, nameSpan, "`%s` is a reserved word and can't be used as a field name", name)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expect(TokColon); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}

	var init Expr
	if p.cur.Kind == TokEquals {
		if err := p.advance(); err != nil {
			return nil, err
		}
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	end := p.cur.Span.Start
	if err := p.expect(TokSemicolon); err != nil {
		return nil, err
	}
	return &FieldDecl{Name: name, NameSpan: nameSpan, Type: typ, Init: init, Span: Span{start, end}}, nil
}

// type := scalar | "[" scalar ";" expr "]"
func (p *Parser) parseType() (*TypeExpr, error) {
	start := p.cur.Span.Start
	if p.cur.Kind == TokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		scalar, err := p.parseScalar()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokSemicolon); err != nil {
			return nil, err
		}
		length, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur.Span.Start
		if err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return &TypeExpr{IsArray: true, Scalar: scalar, Length: length, Span: Span{start, end}}, nil
	}
	scalar, err := p.parseScalar()
	if err != nil {
		return nil, err
	}
	return &TypeExpr{IsArray: false, Scalar: scalar, Span: Span{start, p.cur.Span.Start}}, nil
}

func (p *Parser) parseScalar() (ScalarKind, error) {
	if p.cur.Kind != TokIdent {
		return 0, newErr(ErrUnexpectedToken, p.cur.Span, "expected scalar type (u8, u16, u32, u64, i8, i16, i32, i64)")
	}
	k, ok := scalarNames[p.cur.Text]
	if !ok {
		return 0, newErr(ErrUnexpectedToken, p.cur.Span, "unknown scalar type `%s`", p.cur.Text)
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return k, nil
}

// expr := or
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokPipe {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "|", X: left, Y: right, Sp: Span{left.Span().Start, right.Span().End}}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokAmp {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&", X: left, Y: right, Sp: Span{left.Span().Start, right.Span().End}}
	}
	return left, nil
}

func (p *Parser) parseShift() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokShl || p.cur.Kind == TokShr {
		op := "<<"
		if p.cur.Kind == TokShr {
			op = ">>"
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, X: left, Y: right, Sp: Span{left.Span().Start, right.Span().End}}
	}
	return left, nil
}

func (p *Parser) parseAdd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokPlus || p.cur.Kind == TokMinus {
		op := "+"
		if p.cur.Kind == TokMinus {
			op = "-"
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, X: left, Y: right, Sp: Span{left.Span().Start, right.Span().End}}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Kind == TokTilde {
		start := p.cur.Span.Start
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "~", X: x, Sp: Span{start, x.Span().End}}, nil
	}
	return p.parsePrimary()
}

// primary := number | string | envvar | builtin | "(" expr ")" | ident
//
// Array literals (`[v, ...]` / `[v; k]`) aren't in spec §6.1's formal
// grammar but are required by §3's array-initializer invariants; they are
// parsed here as an extra primary form, bracket-delimited so there's no
// ambiguity with the array *type* syntax (which only ever appears right
// after a field's `:`).
func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur.Kind {
	case TokInt:
		n := &IntLit{Value: p.cur.IntValue, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case TokString:
		n := &StringLit{Value: p.cur.Text, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case TokEnvVar:
		n := &EnvRef{Name: p.cur.Text, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case TokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case TokLBracket:
		return p.parseArrayLit()
	case TokAt:
		return p.parseAtExpr()
	case TokIdent:
		n := &IdentExpr{Name: p.cur.Text, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected an expression, found %s", describeTok(p.cur))
	}
}

func (p *Parser) parseArrayLit() (Expr, error) {
	start := p.cur.Span.Start
	if err := p.advance(); err != nil { // consume "["
		return nil, err
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	switch p.cur.Kind {
	case TokSemicolon:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == TokIdent && p.cur.Text == "_" {
			end := p.cur.Span.End
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			return &ArrayLit{Repeat: true, RepeatElem: first, CountIsUnderscore: true, Sp: Span{start, end}}, nil
		}
		count, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end := p.cur.Span.Start
		if err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return &ArrayLit{Repeat: true, RepeatElem: first, RepeatCount: count, Sp: Span{start, end}}, nil
	case TokComma:
		elems := []Expr{first}
		for p.cur.Kind == TokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Kind == TokRBracket { // trailing comma
				break
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		end := p.cur.Span.Start
		if err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return &ArrayLit{Elems: elems, Sp: Span{start, end}}, nil
	case TokRBracket:
		end := p.cur.Span.End
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ArrayLit{Elems: []Expr{first}, Sp: Span{start, end}}, nil
	default:
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected `,`, `;`, or `]` in array literal")
	}
}

// builtin := "@" name "(" (arg ("," arg)*)? ")"
func (p *Parser) parseAtExpr() (Expr, error) {
	start := p.cur.Span.Start
	if err := p.advance(); err != nil { // consume "@"
		return nil, err
	}
	if p.cur.Kind != TokIdent {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected builtin name after `@`")
	}
	name := p.cur.Text
	nameSpan := p.cur.Span
	if name == "self" {
		return nil, newErr(ErrInvalidSyntax, nameSpan, "`@self` can only be used as a range argument")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}

	var args []Arg
	if p.cur.Kind != TokRParen {
		for {
			a, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.cur.Kind != TokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	end := p.cur.Span.End
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &CallExpr{Name: name, Args: args, Sp: Span{start, end}}, nil
}

// arg := expr | range | ident  (ident is already covered by expr->primary->ident)
func (p *Parser) parseArg() (Arg, error) {
	if p.cur.Kind == TokAt {
		nxt, err := p.peek()
		if err != nil {
			return nil, err
		}
		if nxt.Kind == TokIdent && nxt.Text == "self" {
			return p.parseRange()
		}
	}
	return p.parseExpr()
}

// range := "@self" ("[" rbound? ".." rbound? "]")?
func (p *Parser) parseRange() (*RangeArg, error) {
	start := p.cur.Span.Start
	if err := p.advance(); err != nil { // consume "@"
		return nil, err
	}
	if !(p.cur.Kind == TokIdent && p.cur.Text == "self") {
		return nil, newErr(ErrUnexpectedToken, p.cur.Span, "expected `self` after `@` in range")
	}
	end := p.cur.Span.End
	if err := p.advance(); err != nil { // consume "self"
		return nil, err
	}

	r := &RangeArg{IsSelf: true}
	if p.cur.Kind == TokLBracket {
		r.HasBrackets = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokDotDot {
			b, err := p.parseRangeBound()
			if err != nil {
				return nil, err
			}
			r.Start = b
		}
		if err := p.expect(TokDotDot); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokRBracket {
			b, err := p.parseRangeBound()
			if err != nil {
				return nil, err
			}
			r.End = b
		}
		end = p.cur.Span.End
		if err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
	}
	r.Sp = Span{start, end}
	return r, nil
}

func (p *Parser) parseRangeBound() (RangeBound, error) {
	switch p.cur.Kind {
	case TokInt:
		b := RangeBound{Present: true, Number: p.cur.IntValue, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return RangeBound{}, err
		}
		return b, nil
	case TokIdent:
		b := RangeBound{Present: true, IsIdent: true, Ident: p.cur.Text, Sp: p.cur.Span}
		if err := p.advance(); err != nil {
			return RangeBound{}, err
		}
		return b, nil
	default:
		return RangeBound{}, newErr(ErrUnexpectedToken, p.cur.Span, "expected a number or field name in range bound")
	}
}
