// Package flags models compiler command-line flags as units and removes the
// ones a frontend-only invocation cannot accept.
package flags

import "strings"

// Unit is a flag token together with its separate value token, if any.
// A positional argument is a Unit with Positional set and Flag holding it.
type Unit struct {
	Flag       string
	Value      string
	HasValue   bool
	Positional bool
}

// Tokens returns the unit as it appears on a command line.
func (u Unit) Tokens() []string {
	if u.HasValue {
		return []string{u.Flag, u.Value}
	}
	return []string{u.Flag}
}

// Key identifies a unit for set semantics.
func (u Unit) Key() string {
	if u.HasValue {
		return u.Flag + "\x00" + u.Value
	}
	return u.Flag
}

func (u Unit) String() string {
	return strings.Join(u.Tokens(), " ")
}

// separateValue lists the flags that take their value as the next token when
// written without a joined value (e.g. "-I dir" as opposed to "-Idir").
var separateValue = map[string]bool{
	"-I": true, "-D": true, "-U": true,
	"-o": true, "-x": true,
	"-include": true, "-imacros": true,
	"-isystem": true, "-iquote": true, "-idirafter": true,
	"-isysroot": true, "--sysroot": true,
	"-iprefix": true, "-iwithprefix": true, "-iwithprefixbefore": true,
	"-MF": true, "-MT": true, "-MQ": true, "-MJ": true,
	"-Xclang": true, "-Xpreprocessor": true, "-Xassembler": true, "-Xlinker": true,
	"-target": true, "--target": true, "-arch": true,
	"-L": true, "-F": true, "-z": true,
	"-ivfsoverlay": true, "-resource-dir": true,
	"-internal-isystem": true, "-internal-externc-isystem": true,
}

// TakesValue reports whether flag consumes the following token.
func TakesValue(flag string) bool {
	return separateValue[flag]
}

// Parse groups argv into units. A value-taking flag at the very end of argv
// becomes a unit without a value; callers that care check HasValue.
func Parse(argv []string) []Unit {
	return parse(argv, TakesValue)
}

func parse(argv []string, takesValue func(string) bool) []Unit {
	units := make([]Unit, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		switch {
		case !strings.HasPrefix(tok, "-") || tok == "-":
			units = append(units, Unit{Flag: tok, Positional: true})
		case takesValue(tok) && i+1 < len(argv):
			units = append(units, Unit{Flag: tok, Value: argv[i+1], HasValue: true})
			i++
		default:
			units = append(units, Unit{Flag: tok})
		}
	}
	return units
}

// Flatten turns units back into a token vector.
func Flatten(units []Unit) []string {
	out := make([]string, 0, len(units)*2)
	for _, u := range units {
		out = append(out, u.Tokens()...)
	}
	return out
}

// Union appends every unit of add not already present in base, keeping
// first-seen order.
func Union(base []Unit, add ...[]Unit) []Unit {
	seen := make(map[string]bool, len(base))
	out := make([]Unit, 0, len(base))
	for _, u := range base {
		if !seen[u.Key()] {
			seen[u.Key()] = true
			out = append(out, u)
		}
	}
	for _, units := range add {
		for _, u := range units {
			if !seen[u.Key()] {
				seen[u.Key()] = true
				out = append(out, u)
			}
		}
	}
	return out
}
