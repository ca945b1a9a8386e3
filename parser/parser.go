// Package parser builds the statement tree from the token stream, and hosts
// the constant-expression evaluator and the memory address splitter used by
// the later phases.
package parser

import (
	"strconv"
	"strings"

	"github.com/skarsol/asm86/diag"
	"github.com/skarsol/asm86/lexer"
)

// relativeMnemonics are instructions whose operand is a label reference.
// The value is the default jump kind; conditional jumps have no near form on
// the 8086 and always start Short.
var relativeMnemonics = map[string]JumpKind{
	"JMP": JumpNear, "CALL": JumpNear,
	"JO": JumpShort, "JNO": JumpShort,
	"JB": JumpShort, "JC": JumpShort, "JNAE": JumpShort,
	"JNB": JumpShort, "JAE": JumpShort, "JNC": JumpShort,
	"JE": JumpShort, "JZ": JumpShort, "JNE": JumpShort, "JNZ": JumpShort,
	"JBE": JumpShort, "JNA": JumpShort, "JNBE": JumpShort, "JA": JumpShort,
	"JS": JumpShort, "JNS": JumpShort,
	"JP": JumpShort, "JPE": JumpShort, "JNP": JumpShort, "JPO": JumpShort,
	"JL": JumpShort, "JNGE": JumpShort, "JNL": JumpShort, "JGE": JumpShort,
	"JLE": JumpShort, "JNG": JumpShort, "JNLE": JumpShort, "JG": JumpShort,
	"LOOP": JumpShort, "LOOPE": JumpShort, "LOOPZ": JumpShort,
	"LOOPNE": JumpShort, "LOOPNZ": JumpShort, "JCXZ": JumpShort,
}

// Parser turns tokens into a Program.
type Parser struct {
	tokens   []lexer.Token
	current  int
	reporter *diag.Reporter
}

// New creates a parser over tokens. Newline tokens are discarded up front;
// statement boundaries fall out of the grammar.
func New(tokens []lexer.Token) *Parser {
	kept := make([]lexer.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Type != lexer.Newline {
			kept = append(kept, t)
		}
	}
	return &Parser{tokens: kept, reporter: &diag.Reporter{}}
}

// Parse consumes the whole token stream.
func (p *Parser) Parse() *Program {
	program := &Program{}
	for !p.atEnd() {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
	}
	return program
}

// HasErrors reports whether parsing recorded any errors.
func (p *Parser) HasErrors() bool { return p.reporter.HasErrors() }

// Errors returns the accumulated diagnostics.
func (p *Parser) Errors() []diag.Record { return p.reporter.Records() }

func (p *Parser) parseStatement() Statement {
	// A label is an identifier followed by ':'. Consecutive labels work
	// because the parse loop calls back in for the rest of the line.
	if p.check(lexer.Identifier) && p.peekNext().Type == lexer.Colon {
		return p.parseLabel()
	}

	if p.check(lexer.Identifier) && p.peekNext().Type == lexer.DirEQU {
		return p.parseEqu()
	}

	// NASM style "name db 1" defines a label without a colon.
	if p.check(lexer.Identifier) && isDataOrReserve(p.peekNext().Type) {
		tok := p.advance()
		return &Label{at(tok.Loc), tok.Lexeme}
	}

	switch p.peek().Type {
	case lexer.DirDB, lexer.DirDW, lexer.DirDD, lexer.DirDQ, lexer.DirDT:
		return p.parseData()
	case lexer.DirOrg:
		return p.parseOrg()
	case lexer.DirSegment, lexer.DirSection:
		return p.parseSegment()
	case lexer.DirEnds:
		return p.parseEnds()
	case lexer.DirResB, lexer.DirResW, lexer.DirResD, lexer.DirResQ, lexer.DirResT:
		return p.parseReserve()
	case lexer.DirTimes:
		return p.parseTimes()
	case lexer.Instruction:
		return p.parseInstruction()
	}

	p.errorf("expected instruction, label, or directive, got %q", p.peek().Lexeme)
	p.advance()
	return nil
}

func (p *Parser) parseLabel() Statement {
	name := p.consume(lexer.Identifier, "expected label name")
	p.consume(lexer.Colon, "expected ':' after label")
	return &Label{at(name.Loc), name.Lexeme}
}

func (p *Parser) parseEqu() Statement {
	name := p.consume(lexer.Identifier, "expected constant name")
	p.consume(lexer.DirEQU, "expected EQU")
	value := p.consume(lexer.Number, "expected numeric value after EQU")
	return &EquDirective{at(name.Loc), name.Lexeme, value.Num}
}

func (p *Parser) parseData() Statement {
	dir := p.advance()
	d := &DataDirective{node: at(dir.Loc), Width: directiveWidth(dir.Type)}

	for {
		switch p.peek().Type {
		case lexer.String:
			t := p.advance()
			d.Values = append(d.Values, DataValue{Kind: DataString, Text: t.Str})
		case lexer.Number:
			t := p.advance()
			// A quoted single character keeps character semantics: one byte
			// regardless of element width.
			if strings.HasPrefix(t.Lexeme, "'") {
				d.Values = append(d.Values, DataValue{Kind: DataChar, Number: t.Num, Text: string(byte(t.Num))})
			} else {
				d.Values = append(d.Values, DataValue{Kind: DataNumber, Number: t.Num})
			}
		case lexer.Minus:
			p.advance()
			t := p.consume(lexer.Number, "expected number after '-'")
			d.Values = append(d.Values, DataValue{Kind: DataNumber, Number: -t.Num})
		case lexer.Identifier:
			t := p.advance()
			d.Values = append(d.Values, DataValue{Kind: DataSymbol, Text: t.Lexeme})
		default:
			p.errorf("expected number, string, character literal, or symbol")
			return d
		}
		if !p.match(lexer.Comma) {
			return d
		}
	}
}

func (p *Parser) parseOrg() Statement {
	org := p.consume(lexer.DirOrg, "expected ORG")
	addr := p.consume(lexer.Number, "expected address after ORG")
	return &OrgDirective{at(org.Loc), addr.Num}
}

func (p *Parser) parseSegment() Statement {
	// SEGMENT and SECTION are synonyms for a flat binary.
	dir := p.advance()
	name := p.consume(lexer.Identifier, "expected segment name")
	return &SegmentDirective{at(dir.Loc), name.Lexeme}
}

func (p *Parser) parseEnds() Statement {
	ends := p.consume(lexer.DirEnds, "expected ENDS")
	// The name is optional; a bare ENDS closes the current segment.
	name := ""
	if p.check(lexer.Identifier) {
		name = p.advance().Lexeme
	}
	return &EndsDirective{at(ends.Loc), name}
}

func (p *Parser) parseReserve() Statement {
	dir := p.advance()
	count := p.consume(lexer.Number, "expected count after reserve directive")
	return &ResDirective{at(dir.Loc), reserveWidth(dir.Type), count.Num}
}

func (p *Parser) parseTimes() Statement {
	times := p.consume(lexer.DirTimes, "expected TIMES")

	// The count is a full constant expression; $ and $$ stay textual for the
	// analyzer to substitute at the directive's own address.
	expr, ok := p.collectCountExpr()
	if !ok {
		p.errorf("expected count expression after TIMES")
		return nil
	}

	count := int64(-1)
	if v, err := Evaluate(expr); err == nil {
		count = v
	}

	body := p.parseStatement()
	if body == nil {
		p.errorf("expected statement after TIMES directive")
		return nil
	}

	return &TimesDirective{at(times.Loc), count, expr, body}
}

// collectCountExpr gathers the TIMES count tokens. An identifier is only
// taken at the start or after an operator so the repeated statement's own
// leading identifier is left alone.
func (p *Parser) collectCountExpr() (string, bool) {
	var sb strings.Builder
	lastWasOperator := true
	depth := 0
	for !p.atEnd() {
		switch t := p.peek(); t.Type {
		case lexer.Plus, lexer.Minus, lexer.Star, lexer.Slash:
			p.advance()
			sb.WriteString(t.Lexeme)
			lastWasOperator = true
		case lexer.LParen:
			p.advance()
			depth++
			sb.WriteByte('(')
			lastWasOperator = true
		case lexer.RParen:
			if depth == 0 {
				return sb.String(), sb.Len() > 0
			}
			p.advance()
			depth--
			sb.WriteByte(')')
			lastWasOperator = false
		case lexer.Number:
			if !lastWasOperator {
				return sb.String(), sb.Len() > 0
			}
			p.advance()
			sb.WriteString(strconv.FormatInt(t.Num, 10))
			lastWasOperator = false
		case lexer.Dollar:
			if !lastWasOperator {
				return sb.String(), sb.Len() > 0
			}
			p.advance()
			sb.WriteByte('$')
			lastWasOperator = false
		case lexer.DoubleDollar:
			if !lastWasOperator {
				return sb.String(), sb.Len() > 0
			}
			p.advance()
			sb.WriteString("$$")
			lastWasOperator = false
		case lexer.Identifier:
			if !lastWasOperator {
				return sb.String(), sb.Len() > 0
			}
			p.advance()
			sb.WriteString(t.Lexeme)
			lastWasOperator = false
		default:
			return sb.String(), sb.Len() > 0
		}
	}
	return sb.String(), sb.Len() > 0
}

func (p *Parser) parseInstruction() Statement {
	tok := p.consume(lexer.Instruction, "expected instruction")
	instr := &Instruction{node: at(tok.Loc), Mnemonic: tok.Lexeme}

	if p.atEnd() || !p.isOperandStart(p.peek()) {
		return instr
	}

	// An identifier followed by ':' or a data directive is the next line's
	// label, not an operand of this instruction.
	if p.check(lexer.Identifier) {
		next := p.peekNext().Type
		if next == lexer.Colon || isDataOrReserve(next) {
			return instr
		}
	}

	if op := p.parseOperand(tok.Lexeme); op != nil {
		instr.Operands = append(instr.Operands, op)
	}
	for p.match(lexer.Comma) {
		if op := p.parseOperand(tok.Lexeme); op != nil {
			instr.Operands = append(instr.Operands, op)
		}
	}
	return instr
}

func (p *Parser) parseOperand(mnemonic string) Operand {
	var sizeHint uint8
	if p.match(lexer.BytePtr) {
		sizeHint = 8
	} else if p.match(lexer.WordPtr) {
		sizeHint = 16
	}

	// Segment override written outside the brackets: ES:[DI].
	segOverride := ""
	if p.peek().IsSegReg() && p.peekNext().Type == lexer.Colon {
		seg := p.advance()
		p.advance() // colon
		segOverride = strings.ToUpper(seg.Lexeme)
	}

	if p.check(lexer.LBracket) {
		return p.parseMemory(segOverride, sizeHint)
	}

	if p.peek().IsRegister() {
		t := p.advance()
		return &Register{at(t.Loc), t.Lexeme, t.RegisterSize(), t.RegisterCode(), t.IsSegReg()}
	}

	if p.check(lexer.Number) || p.check(lexer.Minus) || p.check(lexer.Plus) ||
		p.check(lexer.LParen) {
		return p.parseImmediate(sizeHint)
	}

	upper := strings.ToUpper(mnemonic)
	jump, isRelative := relativeMnemonics[upper]
	if p.match(lexer.ShortKw) {
		jump = JumpShort
	} else if p.match(lexer.NearKw) {
		jump = JumpNear
	} else if p.match(lexer.FarKw) {
		jump = JumpFar
	}

	if p.check(lexer.Identifier) {
		tok := p.advance()
		expr := tok.Lexeme

		// Collect symbol arithmetic such as VAR1+VAR2, SIZE-2, COUNT*2 into one
		// expression. The encoder resolves only EQU constants in it; label
		// terms do not resolve.
		for p.check(lexer.Plus) || p.check(lexer.Minus) ||
			p.check(lexer.Star) || p.check(lexer.Slash) {
			op := p.advance()
			expr += " " + op.Lexeme + " "
			if p.check(lexer.Identifier) || p.check(lexer.Number) {
				expr += p.advance().Lexeme
			} else {
				p.errorf("expected identifier or number after %q", op.Lexeme)
				break
			}
		}

		if isRelative {
			return &LabelRef{at(tok.Loc), expr, jump}
		}
		// LEA/LDS/LES take a bare label as a direct memory reference.
		if expr == tok.Lexeme {
			switch upper {
			case "LEA", "LDS", "LES":
				return &LabelRef{at(tok.Loc), expr, JumpNear}
			}
		}
		return &Immediate{node: at(tok.Loc), SizeHint: sizeHint, Expr: expr}
	}

	p.errorf("expected operand (register, immediate, or memory address)")
	return nil
}

// parseImmediate folds a purely numeric expression now; expressions that
// mention identifiers stay textual for encode-time resolution.
func (p *Parser) parseImmediate(sizeHint uint8) Operand {
	loc := p.peek().Loc

	var sb strings.Builder
	hasIdentifier := false
	lastWasOperator := true
	for !p.atEnd() {
		switch t := p.peek(); t.Type {
		case lexer.Plus, lexer.Minus, lexer.Star, lexer.Slash:
			p.advance()
			sb.WriteString(t.Lexeme)
			lastWasOperator = true
		case lexer.LParen:
			p.advance()
			sb.WriteByte('(')
			lastWasOperator = true
		case lexer.RParen:
			p.advance()
			sb.WriteByte(')')
			lastWasOperator = false
		case lexer.Number:
			p.advance()
			sb.WriteString(strconv.FormatInt(t.Num, 10))
			lastWasOperator = false
		case lexer.Identifier:
			// Only after an operator (or at the start): a bare trailing
			// identifier belongs to the next statement.
			if !lastWasOperator {
				goto done
			}
			p.advance()
			hasIdentifier = true
			sb.WriteString(t.Lexeme)
			lastWasOperator = false
		default:
			goto done
		}
	}
done:
	expr := sb.String()
	if expr == "" {
		p.errorf("expected immediate value or expression")
		return nil
	}

	if hasIdentifier {
		return &Immediate{node: at(loc), SizeHint: sizeHint, Expr: expr}
	}

	value, err := Evaluate(expr)
	if err != nil {
		p.errorf("invalid expression %q: %v", expr, err)
		return nil
	}
	return &Immediate{node: at(loc), Value: value, SizeHint: sizeHint}
}

func (p *Parser) parseMemory(segOverride string, sizeHint uint8) Operand {
	loc := p.peek().Loc
	p.consume(lexer.LBracket, "expected '['")

	var sb strings.Builder
	for !p.check(lexer.RBracket) && !p.atEnd() {
		t := p.advance()
		if sb.Len() > 0 && !isExprOperator(t.Type) && !endsWithOperator(sb.String()) {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Lexeme)
	}
	p.consume(lexer.RBracket, "expected ']'")

	expr := sb.String()

	// NASM also allows the override inside the brackets: [ES:DI].
	if colon := strings.IndexByte(expr, ':'); colon >= 0 {
		prefix := strings.ToUpper(strings.TrimSpace(expr[:colon]))
		switch prefix {
		case "ES", "CS", "SS", "DS":
			segOverride = prefix
			expr = strings.TrimSpace(expr[colon+1:])
		}
	}

	mem := &Memory{
		node:        at(loc),
		SegOverride: segOverride,
		Expr:        expr,
		SizeHint:    sizeHint,
	}

	// Early split without symbols; re-parsed with the symbol table during
	// analysis. Failures here surface later with a proper location.
	if parsed, err := ParseAddress(expr); err == nil {
		if len(parsed.Registers) == 0 && parsed.HasDisp && !parsed.HasLabel() {
			mem.Direct = true
			mem.DirectValue = uint16(parsed.Disp)
		} else {
			mem.Parsed = parsed
		}
	}

	return mem
}

func (p *Parser) isOperandStart(t lexer.Token) bool {
	switch t.Type {
	case lexer.Number, lexer.Identifier, lexer.LBracket, lexer.LParen,
		lexer.BytePtr, lexer.WordPtr,
		lexer.Minus, lexer.Plus,
		lexer.ShortKw, lexer.NearKw, lexer.FarKw:
		return true
	}
	return t.IsRegister()
}

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) peekNext() lexer.Token {
	if p.current+1 < len(p.tokens) {
		return p.tokens[p.current+1]
	}
	return p.tokens[p.current]
}

func (p *Parser) advance() lexer.Token {
	t := p.tokens[p.current]
	if !p.atEnd() {
		p.current++
	}
	return t
}

func (p *Parser) match(t lexer.Type) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) check(t lexer.Type) bool {
	if p.atEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) consume(t lexer.Type, message string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorf("%s", message)
	return p.peek()
}

func (p *Parser) atEnd() bool { return p.peek().Type == lexer.EOF }

func (p *Parser) errorf(format string, args ...any) {
	p.reporter.Errorf(p.peek().Loc, format, args...)
}

func isDataOrReserve(t lexer.Type) bool {
	switch t {
	case lexer.DirDB, lexer.DirDW, lexer.DirDD, lexer.DirDQ, lexer.DirDT,
		lexer.DirResB, lexer.DirResW, lexer.DirResD, lexer.DirResQ, lexer.DirResT:
		return true
	}
	return false
}

func isExprOperator(t lexer.Type) bool {
	switch t {
	case lexer.Plus, lexer.Minus, lexer.Star, lexer.Slash:
		return true
	}
	return false
}

func endsWithOperator(s string) bool {
	switch s[len(s)-1] {
	case '+', '-', '*', '/':
		return true
	}
	return false
}

func directiveWidth(t lexer.Type) int {
	switch t {
	case lexer.DirDB:
		return 1
	case lexer.DirDW:
		return 2
	case lexer.DirDD:
		return 4
	case lexer.DirDQ:
		return 8
	case lexer.DirDT:
		return 10
	}
	return 0
}

func reserveWidth(t lexer.Type) int {
	switch t {
	case lexer.DirResB:
		return 1
	case lexer.DirResW:
		return 2
	case lexer.DirResD:
		return 4
	case lexer.DirResQ:
		return 8
	case lexer.DirResT:
		return 10
	}
	return 0
}
