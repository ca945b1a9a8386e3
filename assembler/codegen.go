package assembler

import (
	"fmt"
	"strings"

	"github.com/skarsol/asm86/diag"
	"github.com/skarsol/asm86/parser"
)

// Generator walks the analyzed tree once, in order, producing the binary,
// the listing and the symbol export. Analysis runs first inside Generate.
type Generator struct {
	analyzer *Analyzer
	encoder  *Encoder
	reporter *diag.Reporter

	binary  []byte
	listing []Line
	addr    uint64
}

// NewGenerator creates a Generator with a fresh analyzer and encoder.
func NewGenerator() *Generator {
	reporter := &diag.Reporter{}
	return &Generator{
		analyzer: NewAnalyzer(reporter),
		encoder:  NewEncoder(),
		reporter: reporter,
	}
}

// SetOrigin seeds the load origin before generation.
func (g *Generator) SetOrigin(addr uint64) {
	g.analyzer.SetOrigin(addr)
}

// Generate analyzes the program and emits its bytes. The returned result is
// partial when errors were recorded.
func (g *Generator) Generate(program *parser.Program) *Result {
	g.binary = nil
	g.listing = nil
	g.reporter.Clear()

	result := &Result{Symbols: make(map[string]uint64)}

	if !g.analyzer.Analyze(program) {
		result.Diagnostics = g.reporter.Records()
		result.Success = false
		result.Origin = g.analyzer.Origin()
		return result
	}

	g.addr = g.analyzer.Origin()
	// The encoder borrows the analyzer's table for this run only.
	g.encoder.SetSymbolTable(g.analyzer.Symbols())

	for _, stmt := range program.Statements {
		g.generateStatement(stmt)
	}

	result.Binary = g.binary
	result.Listing = g.listing
	result.Diagnostics = g.reporter.Records()
	result.Success = !g.reporter.HasErrors()
	result.Origin = g.analyzer.Origin()

	for _, sym := range g.analyzer.Symbols().All() {
		if sym.Kind == SymbolLabel {
			result.Symbols[sym.Name] = uint64(sym.Value)
		}
	}

	return result
}

func (g *Generator) generateStatement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.Label:
		if !IsLocalLabel(s.Name) {
			g.analyzer.Symbols().SetGlobalScope(s.Name)
		}
		g.addListing(Line{
			SourceLine: s.Loc().Line,
			Text:       s.Name + ":",
			Addr:       g.addr,
			OK:         true,
		})

	case *parser.Instruction:
		g.generateInstruction(s)

	case *parser.DataDirective:
		g.generateData(s)

	case *parser.EquDirective:
		g.addListing(Line{
			SourceLine: s.Loc().Line,
			Text:       fmt.Sprintf("%s EQU %d", s.Name, s.Value),
			Addr:       g.addr,
			OK:         true,
		})

	case *parser.OrgDirective:
		g.addr = uint64(s.Address)
		g.addListing(Line{
			SourceLine: s.Loc().Line,
			Text:       fmt.Sprintf("ORG 0x%X", s.Address),
			Addr:       g.addr,
			OK:         true,
		})

	case *parser.SegmentDirective:
		g.addListing(Line{
			SourceLine: s.Loc().Line,
			Text:       "SEGMENT " + s.Name,
			Addr:       g.addr,
			OK:         true,
		})

	case *parser.EndsDirective:
		text := "ENDS"
		if s.Name != "" {
			text = s.Name + " ENDS"
		}
		g.addListing(Line{SourceLine: s.Loc().Line, Text: text, Addr: g.addr, OK: true})

	case *parser.ResDirective:
		g.generateReserve(s)

	case *parser.TimesDirective:
		for i := int64(0); i < s.Count; i++ {
			g.generateStatement(s.Body)
		}
	}
}

func (g *Generator) generateInstruction(instr *parser.Instruction) {
	// Relative jumps are computed against the pass-1 address so they agree
	// with the symbol values the analyzer assigned.
	g.encoder.SetCurrentAddress(instr.Addr)

	code, err := g.encoder.Encode(instr)

	line := Line{
		SourceLine: instr.Loc().Line,
		Text:       formatInstruction(instr),
		Addr:       g.addr,
	}

	if err != nil {
		// Keep the layout consistent with pass 1: pad with the estimated
		// size so later addresses and label values stay valid.
		line.ErrMsg = err.Error()
		g.reporter.Errorf(instr.Loc(), "%v", err)
		code = make([]byte, instr.Size)
	} else {
		line.OK = true
	}

	line.Code = code
	g.binary = append(g.binary, code...)
	g.addr += uint64(len(code))
	g.addListing(line)
}

func (g *Generator) generateData(data *parser.DataDirective) {
	line := Line{SourceLine: data.Loc().Line, Addr: g.addr, OK: true}

	var text strings.Builder
	text.WriteString(dataDirectiveName(data.Width))
	text.WriteByte(' ')

	for i, v := range data.Values {
		if i > 0 {
			text.WriteString(", ")
		}
		switch v.Kind {
		case parser.DataString:
			fmt.Fprintf(&text, "%q", v.Text)
			line.Code = append(line.Code, []byte(v.Text)...)
		case parser.DataChar:
			fmt.Fprintf(&text, "'%s'", v.Text)
			line.Code = append(line.Code, byte(v.Number))
		default:
			fmt.Fprintf(&text, "0x%X", v.Number)
			line.Code = append(line.Code, littleEndian(v.Number, data.Width)...)
		}
	}

	line.Text = text.String()
	g.binary = append(g.binary, line.Code...)
	g.addr += uint64(len(line.Code))
	g.addListing(line)
}

func (g *Generator) generateReserve(res *parser.ResDirective) {
	// No true BSS in a flat binary; reserved space emits zeros.
	size := uint64(res.Width) * uint64(res.Count)
	zeros := make([]byte, size)

	g.addListing(Line{
		SourceLine: res.Loc().Line,
		Text:       fmt.Sprintf("%s %d", reserveDirectiveName(res.Width), res.Count),
		Code:       zeros,
		Addr:       g.addr,
		OK:         true,
	})
	g.binary = append(g.binary, zeros...)
	g.addr += size
}

func (g *Generator) addListing(line Line) {
	g.listing = append(g.listing, line)
}

// formatInstruction reconstructs the source text of an instruction for the
// listing.
func formatInstruction(instr *parser.Instruction) string {
	var sb strings.Builder
	sb.WriteString(instr.Mnemonic)
	for i, op := range instr.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		switch o := op.(type) {
		case *parser.Register:
			sb.WriteString(o.Name)
		case *parser.Immediate:
			if o.Symbolic() {
				sb.WriteString(o.Expr)
			} else {
				fmt.Fprintf(&sb, "0x%X", o.Value)
			}
		case *parser.Memory:
			if o.SegOverride != "" {
				sb.WriteString(o.SegOverride)
				sb.WriteByte(':')
			}
			sb.WriteByte('[')
			sb.WriteString(o.Expr)
			sb.WriteByte(']')
		case *parser.LabelRef:
			sb.WriteString(o.Name)
		}
	}
	return sb.String()
}

func dataDirectiveName(width int) string {
	switch width {
	case 1:
		return "DB"
	case 2:
		return "DW"
	case 4:
		return "DD"
	case 8:
		return "DQ"
	case 10:
		return "DT"
	}
	return "DB"
}

func reserveDirectiveName(width int) string {
	switch width {
	case 1:
		return "RESB"
	case 2:
		return "RESW"
	case 4:
		return "RESD"
	case 8:
		return "RESQ"
	case 10:
		return "REST"
	}
	return "RESB"
}
