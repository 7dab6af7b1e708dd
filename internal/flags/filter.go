package flags

import "strings"

type MatchKind int

const (
	Exact MatchKind = iota
	Prefix
)

// Rule removes a flag from a frontend-only invocation. When ConsumesValue is
// set the following token is removed with it.
type Rule struct {
	Name          string
	Match         MatchKind
	ConsumesValue bool
	Reason        string
}

func (r Rule) matches(flag string) bool {
	if r.Match == Exact {
		return flag == r.Name
	}
	return strings.HasPrefix(flag, r.Name)
}

// DefaultRules strips debug info, stage selection, optimisation, warnings and
// the driver-only flags that -cc1 rejects. Prefix rules are limited to
// families that have no legitimate frontend member.
var DefaultRules = []Rule{
	{Name: "-g", Match: Exact, Reason: "debug info"},
	{Name: "-ggdb", Match: Prefix, Reason: "debug info"},
	{Name: "-gdwarf", Match: Prefix, Reason: "debug info"},
	{Name: "-gsplit-dwarf", Match: Exact, Reason: "debug info"},
	{Name: "-g0", Match: Exact, Reason: "debug info"},
	{Name: "-g1", Match: Exact, Reason: "debug info"},
	{Name: "-g2", Match: Exact, Reason: "debug info"},
	{Name: "-g3", Match: Exact, Reason: "debug info"},
	{Name: "-c", Match: Exact, Reason: "compile-only stage"},
	{Name: "-S", Match: Exact, Reason: "assemble stage"},
	{Name: "-o", Match: Exact, ConsumesValue: true, Reason: "output file"},
	{Name: "-O", Match: Prefix, Reason: "optimisation level"},
	{Name: "-W", Match: Prefix, Reason: "warnings and pass-through options"},
	{Name: "-pedantic", Match: Prefix, Reason: "warnings"},
	{Name: "-flto", Match: Prefix, Reason: "codegen feature"},
	{Name: "-fPIC", Match: Exact, Reason: "codegen feature"},
	{Name: "-fpic", Match: Exact, Reason: "codegen feature"},
	{Name: "-fPIE", Match: Exact, Reason: "codegen feature"},
	{Name: "-fpie", Match: Exact, Reason: "codegen feature"},
	{Name: "-fstack-protector", Match: Prefix, Reason: "codegen feature"},
	{Name: "-fstack-clash-protection", Match: Exact, Reason: "codegen feature"},
	{Name: "-fcf-protection", Match: Prefix, Reason: "codegen feature"},
	{Name: "-fomit-frame-pointer", Match: Exact, Reason: "codegen feature"},
	{Name: "-fno-omit-frame-pointer", Match: Exact, Reason: "codegen feature"},
	{Name: "-ffunction-sections", Match: Exact, Reason: "codegen feature"},
	{Name: "-fdata-sections", Match: Exact, Reason: "codegen feature"},
	{Name: "-fdiagnostics-color", Match: Prefix, Reason: "driver diagnostics"},
	{Name: "-fcolor-diagnostics", Match: Exact, Reason: "driver diagnostics"},
	{Name: "-fsanitize", Match: Prefix, Reason: "codegen feature"},
	{Name: "-fprofile", Match: Prefix, Reason: "codegen feature"},
	{Name: "--coverage", Match: Exact, Reason: "codegen feature"},
	{Name: "-march=", Match: Prefix, Reason: "driver-only target selection"},
	{Name: "-mtune=", Match: Prefix, Reason: "driver-only target selection"},
	{Name: "-pipe", Match: Exact, Reason: "driver-only"},
	{Name: "-pthread", Match: Exact, Reason: "driver-only"},
	{Name: "-MD", Match: Exact, Reason: "dependency output"},
	{Name: "-MMD", Match: Exact, Reason: "dependency output"},
	{Name: "-MP", Match: Exact, Reason: "dependency output"},
	{Name: "-MF", Match: Exact, ConsumesValue: true, Reason: "dependency output"},
	{Name: "-MT", Match: Exact, ConsumesValue: true, Reason: "dependency output"},
	{Name: "-MQ", Match: Exact, ConsumesValue: true, Reason: "dependency output"},
	{Name: "-MJ", Match: Exact, ConsumesValue: true, Reason: "compilation database output"},
	{Name: "-L", Match: Prefix, Reason: "link stage"},
	{Name: "-l", Match: Prefix, Reason: "link stage"},
	{Name: "-Xlinker", Match: Exact, ConsumesValue: true, Reason: "link stage"},
	{Name: "-Xassembler", Match: Exact, ConsumesValue: true, Reason: "assemble stage"},
}

// Filter applies a rule table to flag units.
type Filter struct {
	rules []Rule
}

// NewFilter returns a filter over rules; nil means DefaultRules.
func NewFilter(rules []Rule) *Filter {
	if rules == nil {
		rules = DefaultRules
	}
	return &Filter{rules: rules}
}

// Match returns the first rule matching flag.
func (f *Filter) Match(flag string) (Rule, bool) {
	for _, r := range f.rules {
		if r.matches(flag) {
			return r, true
		}
	}
	return Rule{}, false
}

// FilterUnits drops every flag unit that matches a rule. Positional units are
// never touched; a kept unit keeps its value.
func (f *Filter) FilterUnits(units []Unit) []Unit {
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		if !u.Positional {
			if _, drop := f.Match(u.Flag); drop {
				continue
			}
		}
		out = append(out, u)
	}
	return out
}

// Filter is the token-vector form of FilterUnits.
func (f *Filter) Filter(argv []string) []string {
	return Flatten(f.FilterUnits(f.Parse(argv)))
}

// Parse is the package-level Parse extended with the value-consuming rules
// of this filter's table.
func (f *Filter) Parse(argv []string) []Unit {
	return parse(argv, func(flag string) bool {
		if TakesValue(flag) {
			return true
		}
		for _, r := range f.rules {
			if r.ConsumesValue && r.Match == Exact && r.Name == flag {
				return true
			}
		}
		return false
	})
}
