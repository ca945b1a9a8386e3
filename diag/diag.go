// Package diag holds source locations and the diagnostic reporter shared by
// every phase of the assembler.
package diag

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Location points at a place in an input file. Line and column are 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

// String formats the location as file:line:column.
func (l Location) String() string {
	file := l.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// Severity classifies a diagnostic record.
type Severity int

const (
	// Warning never fails an assembly run.
	Warning Severity = iota
	// Error fails the run but lets the current phase continue.
	Error
	// Fatal fails the run. The Reporter records it like an Error; stopping
	// the phase is left to the code that reports it.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Fatal:
		return "fatal error"
	default:
		return "error"
	}
}

// Record is one diagnostic produced during assembly.
type Record struct {
	Message  string
	Loc      Location
	Severity Severity
}

// Format renders the record in the compiler-parsable form
// file:line:column: severity: message.
func (r Record) Format() string {
	return fmt.Sprintf("%s: %s: %s", r.Loc, r.Severity, r.Message)
}

// IsError reports whether the record fails the run (warnings do not).
func (r Record) IsError() bool {
	return r.Severity == Error || r.Severity == Fatal
}

// Reporter accumulates diagnostics for one phase. Phases report and continue
// past recoverable problems so a single run can surface multiple errors.
type Reporter struct {
	records   []Record
	hasErrors bool
}

// Errorf records an error at loc.
func (r *Reporter) Errorf(loc Location, format string, args ...any) {
	r.records = append(r.records, Record{fmt.Sprintf(format, args...), loc, Error})
	r.hasErrors = true
}

// Warnf records a warning at loc.
func (r *Reporter) Warnf(loc Location, format string, args ...any) {
	r.records = append(r.records, Record{fmt.Sprintf(format, args...), loc, Warning})
}

// Fatalf records a fatal error at loc.
func (r *Reporter) Fatalf(loc Location, format string, args ...any) {
	r.records = append(r.records, Record{fmt.Sprintf(format, args...), loc, Fatal})
	r.hasErrors = true
}

// Add appends already-built records, tracking error state.
func (r *Reporter) Add(records ...Record) {
	for _, rec := range records {
		r.records = append(r.records, rec)
		if rec.IsError() {
			r.hasErrors = true
		}
	}
}

// Records returns everything reported so far.
func (r *Reporter) Records() []Record {
	return r.records
}

// HasErrors reports whether any record of Error or Fatal severity exists.
func (r *Reporter) HasErrors() bool {
	return r.hasErrors
}

// ErrorCount counts records that fail the run, excluding warnings.
func (r *Reporter) ErrorCount() int {
	n := 0
	for _, rec := range r.records {
		if rec.IsError() {
			n++
		}
	}
	return n
}

// Clear resets the reporter for reuse.
func (r *Reporter) Clear() {
	r.records = nil
	r.hasErrors = false
}

// Err folds all error-severity records into a single error, or nil if the
// run produced none.
func (r *Reporter) Err() error {
	var merr *multierror.Error
	for _, rec := range r.records {
		if rec.IsError() {
			merr = multierror.Append(merr, fmt.Errorf("%s", rec.Format()))
		}
	}
	return merr.ErrorOrNil()
}
