// Package assembler is the core of the 8086 assembler: symbol table,
// encoding catalog, ModR/M computation, instruction encoder, multi-pass
// semantic analyzer and code generator, behind a small library facade.
package assembler

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/skarsol/asm86/diag"
	"github.com/skarsol/asm86/lexer"
	"github.com/skarsol/asm86/parser"
	"github.com/skarsol/asm86/preprocessor"
)

// Line is one row of the listing: a source statement with its address and
// the bytes it produced. ErrMsg is set when the statement failed to encode.
type Line struct {
	SourceLine int
	Text       string
	Code       []byte
	Addr       uint64
	OK         bool
	ErrMsg     string
}

// Result is the outcome of one assembly run. Partial results are produced
// even when errors are present; Success is true only if no error- or
// fatal-severity diagnostic was recorded in any phase.
type Result struct {
	Binary      []byte
	Listing     []Line
	Symbols     map[string]uint64 // label name (original case) -> address
	Diagnostics []diag.Record
	Success     bool
	Origin      uint64
}

// ListingText renders the listing: four-hex-digit address, machine-code
// bytes, reconstructed source, separated by " | ".
func (r *Result) ListingText() string {
	var sb strings.Builder
	for _, line := range r.Listing {
		fmt.Fprintf(&sb, "%04X | ", line.Addr)
		for _, b := range line.Code {
			fmt.Fprintf(&sb, "%02X ", b)
		}
		sb.WriteString(" | ")
		sb.WriteString(line.Text)
		if line.ErrMsg != "" {
			sb.WriteString("  ; error: ")
			sb.WriteString(line.ErrMsg)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteBinary writes the flat binary to a file.
func (r *Result) WriteBinary(path string) error {
	return os.WriteFile(path, r.Binary, 0644)
}

// Err folds every error-severity diagnostic into one error, or nil when the
// run succeeded.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, rec := range r.Diagnostics {
		if rec.IsError() {
			merr = multierror.Append(merr, fmt.Errorf("%s", rec.Format()))
		}
	}
	return merr.ErrorOrNil()
}

// Assembler is the library entry point. Each call to Assemble runs the full
// pipeline with freshly constructed phase instances; an Assembler holds no
// state between runs beyond its configuration.
type Assembler struct {
	origin       uint64
	includePaths []string
	warnings     bool
}

// New creates an Assembler with warnings enabled and origin 0.
func New() *Assembler {
	return &Assembler{warnings: true}
}

// SetOrigin sets the load origin used when the source has no ORG directive.
func (asm *Assembler) SetOrigin(origin uint64) {
	asm.origin = origin
}

// SetIncludePaths sets the %include search directories.
func (asm *Assembler) SetIncludePaths(paths []string) {
	asm.includePaths = paths
}

// EnableWarnings toggles warning diagnostics in results.
func (asm *Assembler) EnableWarnings(enable bool) {
	asm.warnings = enable
}

// Assemble translates source into a flat binary, listing and symbol map.
// The filename is used for diagnostics and include resolution.
func (asm *Assembler) Assemble(source, filename string) *Result {
	if filename == "" {
		filename = "<input>"
	}

	// Phase 0: preprocessing.
	pp := preprocessor.New()
	pp.SetIncludePaths(asm.includePaths)
	preprocessed := pp.Process(source, filename)
	if !preprocessed.Success {
		return &Result{
			Symbols:     map[string]uint64{},
			Diagnostics: preprocessed.Errors,
		}
	}

	// Phase 1: lexical analysis.
	tokens := lexer.New(preprocessed.Source, filename).Tokenize()
	logrus.Debugf("assemble %s: %d tokens", filename, len(tokens))

	// Phase 2: parsing.
	p := parser.New(tokens)
	program := p.Parse()
	if p.HasErrors() {
		return &Result{
			Symbols:     map[string]uint64{},
			Diagnostics: p.Errors(),
		}
	}

	// Phases 3+4: semantic analysis and code generation.
	gen := NewGenerator()
	gen.SetOrigin(asm.origin)
	result := gen.Generate(program)

	if !asm.warnings {
		kept := result.Diagnostics[:0]
		for _, rec := range result.Diagnostics {
			if rec.Severity != diag.Warning {
				kept = append(kept, rec)
			}
		}
		result.Diagnostics = kept
	}
	return result
}

// AssembleFile reads path and assembles its contents.
func (asm *Assembler) AssembleFile(path string) *Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{
			Symbols: map[string]uint64{},
			Diagnostics: []diag.Record{{
				Message:  fmt.Sprintf("could not open file: %s", path),
				Loc:      diag.Location{File: path, Line: 1, Column: 1},
				Severity: diag.Fatal,
			}},
		}
	}
	return asm.Assemble(string(data), path)
}
