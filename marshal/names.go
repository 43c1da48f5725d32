package marshal

import "unicode"

var keywords = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "load": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// ValidName reports whether name can be bound in a Starlark namespace and
// referenced from script code: an identifier that is not a keyword. Letters
// may be any Unicode letter; digits are ASCII only, as in the scanner.
func ValidName(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_' || unicode.IsLetter(c):
		case i > 0 && '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return true
}
