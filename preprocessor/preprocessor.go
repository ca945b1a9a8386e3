// Package preprocessor performs the textual expansion pass that runs before
// lexing: %define constants, %macro bodies with numbered parameters,
// %if/%ifdef conditionals, and %include splicing.
package preprocessor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skarsol/asm86/diag"
)

// Result is the outcome of one preprocessing run.
type Result struct {
	Source  string
	Errors  []diag.Record
	Success bool
}

type macro struct {
	name      string
	argc      int
	body      []string
	definedAt int
}

type conditional struct {
	active        bool
	hasTrueBranch bool
	line          int
}

// Preprocessor expands one source text. The zero value is not usable; call
// New.
type Preprocessor struct {
	defines      map[string]string
	macros       map[string]macro
	includePaths []string

	reporter     *diag.Reporter
	conditionals []conditional
	output       []string
	filename     string
	recording    bool
	currentMacro macro
	includeDepth int
}

// New creates a Preprocessor.
func New() *Preprocessor {
	return &Preprocessor{
		defines:  make(map[string]string),
		macros:   make(map[string]macro),
		reporter: &diag.Reporter{},
	}
}

// SetIncludePaths sets the directories searched by %include after the
// current directory.
func (pp *Preprocessor) SetIncludePaths(paths []string) {
	pp.includePaths = paths
}

// Process expands source. The filename is used for diagnostics and for
// resolving relative includes.
func (pp *Preprocessor) Process(source, filename string) Result {
	pp.reporter.Clear()
	pp.conditionals = nil
	pp.output = nil
	pp.recording = false
	pp.filename = filename

	pp.processInto(source, filename)

	if len(pp.conditionals) > 0 {
		pp.errorf(pp.conditionals[len(pp.conditionals)-1].line,
			"unclosed conditional block (missing %%endif)")
	}
	if pp.recording {
		pp.errorf(pp.currentMacro.definedAt,
			"unclosed macro definition (missing %%endmacro)")
	}

	var sb strings.Builder
	for _, line := range pp.output {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return Result{
		Source:  sb.String(),
		Errors:  pp.reporter.Records(),
		Success: !pp.reporter.HasErrors(),
	}
}

func (pp *Preprocessor) processInto(source, filename string) {
	saved := pp.filename
	pp.filename = filename
	defer func() { pp.filename = saved }()

	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNum := i + 1

		// Trailing backslash joins the next line.
		for strings.HasSuffix(line, "\\") {
			line = strings.TrimSuffix(line, "\\")
			if i+1 >= len(lines) {
				pp.errorf(lineNum, "line continuation at end of file")
				break
			}
			i++
			line += lines[i]
		}

		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			if !pp.recording && pp.active() {
				pp.output = append(pp.output, trimmed)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "%") {
			pp.directive(trimmed, lineNum)
			continue
		}

		if pp.recording {
			pp.currentMacro.body = append(pp.currentMacro.body, trimmed)
			continue
		}
		if !pp.active() {
			continue
		}

		expanded := pp.expandDefines(trimmed)
		if pp.expandMacro(expanded, lineNum) {
			continue
		}
		pp.output = append(pp.output, expanded)
	}
}

func (pp *Preprocessor) directive(line string, lineNum int) {
	name, rest := splitDirective(line)
	switch name {
	case "define":
		if !pp.recording && pp.active() {
			pp.handleDefine(rest, lineNum)
		}
	case "undef":
		if !pp.recording && pp.active() {
			pp.handleUndef(rest, lineNum)
		}
	case "ifdef":
		pp.handleIfdef(rest, lineNum, false)
	case "ifndef":
		pp.handleIfdef(rest, lineNum, true)
	case "if":
		pp.handleIf(rest, lineNum)
	case "elif":
		pp.handleElif(rest, lineNum)
	case "else":
		pp.handleElse(lineNum)
	case "endif":
		pp.handleEndif(lineNum)
	case "macro":
		if !pp.recording && pp.active() {
			pp.handleMacro(rest, lineNum)
		}
	case "endmacro":
		if pp.recording {
			pp.macros[strings.ToLower(pp.currentMacro.name)] = pp.currentMacro
			pp.recording = false
		} else {
			pp.errorf(lineNum, "%%endmacro without matching %%macro")
		}
	case "include":
		if !pp.recording && pp.active() {
			pp.handleInclude(rest, lineNum)
		}
	default:
		pp.errorf(lineNum, "unknown preprocessor directive: %%%s", name)
	}
}

func (pp *Preprocessor) handleDefine(rest string, lineNum int) {
	name, value := splitNameValue(rest)
	if name == "" {
		pp.errorf(lineNum, "%%define requires a name")
		return
	}
	pp.defines[name] = value
	logrus.Debugf("preprocessor: define %s = %q", name, value)
}

func (pp *Preprocessor) handleUndef(rest string, lineNum int) {
	name, _ := splitNameValue(rest)
	if name == "" {
		pp.errorf(lineNum, "%%undef requires a name")
		return
	}
	delete(pp.defines, name)
}

func (pp *Preprocessor) handleIfdef(rest string, lineNum int, negate bool) {
	word := "ifdef"
	if negate {
		word = "ifndef"
	}
	name := strings.TrimSpace(rest)
	if name == "" {
		pp.errorf(lineNum, "%%%s requires a name", word)
		return
	}
	_, defined := pp.defines[name]
	cond := defined != negate
	pp.push(cond, lineNum)
}

func (pp *Preprocessor) handleIf(rest string, lineNum int) {
	expr := strings.TrimSpace(rest)
	if expr == "" {
		pp.errorf(lineNum, "%%if requires an expression")
		return
	}
	pp.push(evaluateCondition(pp.expandDefines(expr)), lineNum)
}

func (pp *Preprocessor) handleElif(rest string, lineNum int) {
	if len(pp.conditionals) == 0 {
		pp.errorf(lineNum, "%%elif without matching %%if")
		return
	}
	expr := strings.TrimSpace(rest)
	if expr == "" {
		pp.errorf(lineNum, "%%elif requires an expression")
		return
	}
	block := &pp.conditionals[len(pp.conditionals)-1]
	if block.hasTrueBranch {
		block.active = false
		return
	}
	result := evaluateCondition(pp.expandDefines(expr)) && pp.parentActive()
	block.active = result
	block.hasTrueBranch = result
}

func (pp *Preprocessor) handleElse(lineNum int) {
	if len(pp.conditionals) == 0 {
		pp.errorf(lineNum, "%%else without matching %%if")
		return
	}
	block := &pp.conditionals[len(pp.conditionals)-1]
	if block.hasTrueBranch {
		block.active = false
		return
	}
	block.active = pp.parentActive()
	block.hasTrueBranch = true
}

func (pp *Preprocessor) handleEndif(lineNum int) {
	if len(pp.conditionals) == 0 {
		pp.errorf(lineNum, "%%endif without matching %%if")
		return
	}
	pp.conditionals = pp.conditionals[:len(pp.conditionals)-1]
}

func (pp *Preprocessor) handleMacro(rest string, lineNum int) {
	name, countText := splitNameValue(rest)
	if name == "" {
		pp.errorf(lineNum, "%%macro requires a name")
		return
	}
	argc := 0
	if countText != "" {
		n, err := strconv.Atoi(strings.Fields(countText)[0])
		if err != nil {
			pp.errorf(lineNum, "invalid macro parameter count %q", countText)
			return
		}
		argc = n
	}
	pp.recording = true
	pp.currentMacro = macro{name: name, argc: argc, definedAt: lineNum}
}

func (pp *Preprocessor) handleInclude(rest string, lineNum int) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		pp.errorf(lineNum, "%%include requires a filename")
		return
	}

	open := rest[0]
	var closing byte
	switch open {
	case '"':
		closing = '"'
	case '<':
		closing = '>'
	default:
		pp.errorf(lineNum, "%%include filename must be in quotes or angle brackets")
		return
	}
	end := strings.IndexByte(rest[1:], closing)
	if end < 0 {
		pp.errorf(lineNum, "%%include missing closing quote")
		return
	}
	name := rest[1 : 1+end]

	if pp.includeDepth >= 16 {
		pp.errorf(lineNum, "%%include nesting too deep at %q", name)
		return
	}

	path := pp.findInclude(name)
	if path == "" {
		pp.errorf(lineNum, "could not find include file: %s", name)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		pp.errorf(lineNum, "could not open file: %s", path)
		return
	}

	logrus.Debugf("preprocessor: including %s", path)
	pp.includeDepth++
	pp.processInto(string(data), path)
	pp.includeDepth--
}

func (pp *Preprocessor) findInclude(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if dir := filepath.Dir(pp.filename); dir != "" && dir != "." {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	for _, dir := range pp.includePaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// expandDefines substitutes %define names on whole-word boundaries.
func (pp *Preprocessor) expandDefines(line string) string {
	result := line
	for name, value := range pp.defines {
		result = replaceWord(result, name, value)
	}
	return result
}

// expandMacro expands a macro invocation line; reports whether it did.
func (pp *Preprocessor) expandMacro(line string, lineNum int) bool {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) == 0 {
		return false
	}
	m, ok := pp.macros[strings.ToLower(fields[0])]
	if !ok {
		return false
	}

	var args []string
	if len(fields) == 2 {
		for _, a := range strings.Split(fields[1], ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}
	if len(args) != m.argc {
		pp.errorf(lineNum, "macro %s expects %d argument(s), got %d",
			m.name, m.argc, len(args))
		return true
	}

	for _, bodyLine := range m.body {
		expanded := bodyLine
		// Highest numbers first so %10 is not clobbered by %1.
		for n := len(args); n >= 1; n-- {
			expanded = strings.ReplaceAll(expanded, "%"+strconv.Itoa(n), args[n-1])
		}
		pp.output = append(pp.output, pp.expandDefines(expanded))
	}
	return true
}

func (pp *Preprocessor) push(cond bool, lineNum int) {
	active := cond && pp.active()
	pp.conditionals = append(pp.conditionals, conditional{active, active, lineNum})
}

func (pp *Preprocessor) active() bool {
	if len(pp.conditionals) == 0 {
		return true
	}
	return pp.conditionals[len(pp.conditionals)-1].active
}

func (pp *Preprocessor) parentActive() bool {
	if len(pp.conditionals) <= 1 {
		return true
	}
	return pp.conditionals[len(pp.conditionals)-2].active
}

func (pp *Preprocessor) errorf(line int, format string, args ...any) {
	pp.reporter.Errorf(diag.Location{File: pp.filename, Line: line, Column: 1},
		format, args...)
}

// splitDirective separates "%name rest" into a lowercased name and the
// remainder of the line.
func splitDirective(line string) (string, string) {
	i := 1
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	start := i
	for i < len(line) && isWordByte(line[i]) {
		i++
	}
	return strings.ToLower(line[start:i]), line[i:]
}

func splitNameValue(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

// evaluateCondition handles %if expressions: a plain number (nonzero is
// true) or a == / != comparison of the expanded texts.
func evaluateCondition(expr string) bool {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return false
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n != 0
	}
	if i := strings.Index(trimmed, "=="); i >= 0 {
		return strings.TrimSpace(trimmed[:i]) == strings.TrimSpace(trimmed[i+2:])
	}
	if i := strings.Index(trimmed, "!="); i >= 0 {
		return strings.TrimSpace(trimmed[:i]) != strings.TrimSpace(trimmed[i+2:])
	}
	return false
}

// replaceWord substitutes every whole-word occurrence of name in s.
func replaceWord(s, name, value string) string {
	var sb strings.Builder
	for pos := 0; pos < len(s); {
		i := strings.Index(s[pos:], name)
		if i < 0 {
			sb.WriteString(s[pos:])
			break
		}
		i += pos
		end := i + len(name)
		startOK := i == 0 || !isWordByte(s[i-1])
		endOK := end >= len(s) || !isWordByte(s[end])
		if startOK && endOK {
			sb.WriteString(s[pos:i])
			sb.WriteString(value)
			pos = end
		} else {
			sb.WriteString(s[pos : i+1])
			pos = i + 1
		}
	}
	return sb.String()
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '_'
}
