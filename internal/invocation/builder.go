// Package invocation assembles the frontend-only compiler command that hosts
// the analysis plugin.
package invocation

import (
	"errors"
	"fmt"

	"argstates/internal/flags"
	"argstates/internal/sysinclude"
)

// Plugin parameter keys understood by the ArgStates plugin.
const (
	ParamSymbolName = "-symbol-name"
	ParamNamesFile  = "-names-file"
	ParamSuffix     = "-suffix"
)

// FrontendMode selects the compiler frontend directly.
const FrontendMode = "-cc1"

var ErrIncompleteSpec = errors.New("incomplete invocation spec")

// Param is one plugin key/value pair.
type Param struct {
	Key   string
	Value string
}

// Spec describes one plugin-hosting compiler invocation.
type Spec struct {
	Executable      string
	PluginPath      string
	PluginName      string
	Params          []Param
	SystemIncludes  []sysinclude.IncludePair
	Inputs          []string
	FallbackInclude string
	Flags           []flags.Unit // already filtered
}

// Build returns the argument vector. Order is fixed:
//
//	executable -cc1 -load <plugin> -plugin <name> <params> <system includes>
//	<inputs> -isystem <fallback> <flags>
//
// Each param contributes `-plugin-arg-<name> key -plugin-arg-<name> value`.
func Build(s Spec) ([]string, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	pluginArg := "-plugin-arg-" + s.PluginName
	argv := make([]string, 0, 8+4*len(s.Params)+2*len(s.SystemIncludes)+len(s.Inputs)+2*len(s.Flags))

	argv = append(argv, s.Executable, FrontendMode)
	argv = append(argv, "-load", s.PluginPath)
	argv = append(argv, "-plugin", s.PluginName)
	for _, p := range s.Params {
		argv = append(argv, pluginArg, p.Key, pluginArg, p.Value)
	}
	for _, inc := range s.SystemIncludes {
		argv = append(argv, inc.Tokens()...)
	}
	argv = append(argv, s.Inputs...)
	if s.FallbackInclude != "" {
		argv = append(argv, "-isystem", s.FallbackInclude)
	}
	argv = append(argv, flags.Flatten(s.Flags)...)
	return argv, nil
}

func (s Spec) validate() error {
	switch {
	case s.Executable == "":
		return fmt.Errorf("%w: executable", ErrIncompleteSpec)
	case s.PluginPath == "":
		return fmt.Errorf("%w: plugin path", ErrIncompleteSpec)
	case s.PluginName == "":
		return fmt.Errorf("%w: plugin name", ErrIncompleteSpec)
	case len(s.Inputs) == 0:
		return fmt.Errorf("%w: no input files", ErrIncompleteSpec)
	}
	for _, p := range s.Params {
		if p.Key == "" || p.Value == "" {
			return fmt.Errorf("%w: plugin parameter %q has no value", ErrIncompleteSpec, p.Key)
		}
	}
	return nil
}

// SymbolParams binds one symbol for a per-symbol pass.
func SymbolParams(symbol string) []Param {
	return []Param{{Key: ParamSymbolName, Value: symbol}}
}

// BatchParams hands the plugin a names file and rename suffix.
func BatchParams(namesFile, suffix string) []Param {
	return []Param{{Key: ParamNamesFile, Value: namesFile}, {Key: ParamSuffix, Value: suffix}}
}
