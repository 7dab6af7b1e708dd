package extractor

import sitter "github.com/smacker/go-tree-sitter"

// Reference kinds.
const (
	KindDefinition = "definition"
	KindCall       = "call"
	KindIdentifier = "identifier"
	KindMacro      = "macro" // found inside a macro body
)

// Reference is one occurrence of a name in a source file.
type Reference struct {
	Name     string `json:"name"`
	Filepath string `json:"filepath"`
	Line     int    `json:"line"` // 1-based
	Kind     string `json:"kind"`
}

// LanguageExtractor defines the interface that each language parser must implement.
type LanguageExtractor interface {
	GetLanguage() *sitter.Language
	GetQuery() string
	ExtractReferences(captureName string, node *sitter.Node, sourceCode []byte, filepath string) []*Reference
}
