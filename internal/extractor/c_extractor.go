package extractor

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

var macroIdentRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// CExtractor implements LanguageExtractor for C sources and headers.
type CExtractor struct{}

func (e *CExtractor) GetLanguage() *sitter.Language {
	return c.GetLanguage()
}

func (e *CExtractor) GetQuery() string {
	return `
		(function_declarator declarator: (identifier) @definition)
		(call_expression function: (identifier) @call)
		(identifier) @identifier
		(type_identifier) @identifier
		(preproc_arg) @macro
	`
}

func (e *CExtractor) ExtractReferences(captureName string, node *sitter.Node, sourceCode []byte, filepath string) []*Reference {
	line := int(node.StartPoint().Row) + 1

	switch captureName {
	case KindDefinition, KindCall, KindIdentifier:
		return []*Reference{{Name: node.Content(sourceCode), Filepath: filepath, Line: line, Kind: captureName}}

	case KindMacro:
		// Macro bodies are not parsed; any identifier-shaped token counts.
		var refs []*Reference
		for _, name := range macroIdentRe.FindAllString(node.Content(sourceCode), -1) {
			refs = append(refs, &Reference{Name: name, Filepath: filepath, Line: line, Kind: KindMacro})
		}
		return refs
	}
	return nil
}
