package code

import (
	"regexp"
	"strings"

	"github.com/tshapedconsultant/datateam/logging"
)

// DefaultForbiddenModules is the denylist applied to analysis code: module
// names whose import, plus bare references to the matching identifiers
// (eval, exec, compile, open), block execution.
var DefaultForbiddenModules = []string{
	"os", "sys", "subprocess", "shutil", "socket",
	"eval", "exec", "compile", "open",
}

// Validator is the static safety gate consulted before any code execution.
// IsSafe is a pure predicate: idempotent, no side effects beyond logging.
type Validator interface {
	IsSafe(code string) bool
}

// StaticValidator scans Python analysis code without executing it. It
// rejects code that imports a denylisted module, references a denylisted
// bare identifier, contains any dunder ("__") substring, or fails basic
// syntax checks. Empty input is trivially safe. String literals and
// comments are stripped before scanning so quoted text cannot trip the
// identifier checks (the dunder check runs on the raw source, matching the
// strictest reading).
type StaticValidator struct {
	forbidden map[string]struct{}
	logger    logging.Logger
}

// StaticValidatorOptions configure optional validator behavior.
type StaticValidatorOptions struct {
	Logger logging.Logger
}

// NewStaticValidator builds a validator over the given denylist; a nil or
// empty list falls back to DefaultForbiddenModules.
func NewStaticValidator(forbidden []string, optFns ...func(o *StaticValidatorOptions)) *StaticValidator {
	opts := StaticValidatorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenModules
	}
	set := make(map[string]struct{}, len(forbidden))
	for _, name := range forbidden {
		set[name] = struct{}{}
	}
	return &StaticValidator{forbidden: set, logger: opts.Logger}
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// IsSafe implements Validator.
func (v *StaticValidator) IsSafe(code string) bool {
	if strings.TrimSpace(code) == "" {
		return true
	}
	if strings.Contains(code, "__") {
		v.logger.Warn("code.safety.blocked", "reason", "dunder reference")
		return false
	}

	stripped, ok := stripLiterals(code)
	if !ok {
		v.logger.Warn("code.safety.blocked", "reason", "unterminated string literal")
		return false
	}
	if !bracketsBalanced(stripped) {
		v.logger.Warn("code.safety.blocked", "reason", "unbalanced brackets")
		return false
	}

	for _, line := range strings.Split(stripped, "\n") {
		if module, ok := importedModule(line); ok {
			if _, bad := v.forbidden[module]; bad {
				v.logger.Warn("code.safety.blocked", "reason", "forbidden import", "module", module)
				return false
			}
		}
	}
	for _, ident := range identifierPattern.FindAllString(stripped, -1) {
		if _, bad := v.forbidden[ident]; bad {
			v.logger.Warn("code.safety.blocked", "reason", "forbidden identifier", "identifier", ident)
			return false
		}
	}
	return true
}

// importedModule extracts the first dotted segment of the module named by an
// "import X" or "from X import Y" statement, if the line is one.
func importedModule(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	switch fields[0] {
	case "import", "from":
		module := fields[1]
		if dot := strings.IndexByte(module, '.'); dot >= 0 {
			module = module[:dot]
		}
		return module, true
	}
	return "", false
}

// stripLiterals removes comments and string literals from Python source,
// preserving line structure. It returns false when a single-line string is
// left unterminated.
func stripLiterals(code string) (string, bool) {
	var out strings.Builder
	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '#':
			for i < len(code) && code[i] != '\n' {
				i++
			}
		case c == '\'' || c == '"':
			quote := code[i]
			// Triple-quoted strings may span lines.
			if strings.HasPrefix(code[i:], strings.Repeat(string(quote), 3)) {
				end := strings.Index(code[i+3:], strings.Repeat(string(quote), 3))
				if end < 0 {
					return "", false
				}
				for _, r := range code[i : i+3+end+3] {
					if r == '\n' {
						out.WriteByte('\n')
					}
				}
				i += 3 + end + 3
				continue
			}
			i++
			for i < len(code) {
				if code[i] == '\\' {
					i += 2
					continue
				}
				if code[i] == quote {
					i++
					break
				}
				if code[i] == '\n' {
					return "", false
				}
				i++
			}
			if i >= len(code) && code[len(code)-1] != quote {
				return "", false
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), true
}

func bracketsBalanced(code string) bool {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
