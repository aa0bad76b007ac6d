// Package surql scans SurrealQL text for the tables a statement touches.
//
// The scan is lexical, not a parse: it finds identifiers that follow a
// table-introducing keyword anywhere in the text, subqueries included. It
// may report tables a statement does not strictly depend on, and it cannot
// see tables named through parameters or computed expressions.
package surql

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes SurrealQL well enough to skip strings and comments.
// Anything it does not recognize falls through to Punct one rune at a time.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Comment", Pattern: `(?:--|//|#)[^\n]*`},
		{Name: "BlockComment", Pattern: `/\*[\s\S]*?\*/`},
		{Name: "String", Pattern: `'(?:\\[\s\S]|[^'\\])*'|"(?:\\[\s\S]|[^"\\])*"`},
		{Name: "Ident", Pattern: "`[^`]*`|⟨[^⟩]*⟩|[a-zA-Z_][a-zA-Z0-9_]*"},
		{Name: "Param", Pattern: `\$[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
		{Name: "Punct", Pattern: `[\s\S]`},
	},
})

var (
	identType   = Lexer.Symbols()["Ident"]
	elidedTypes = map[lexer.TokenType]bool{
		Lexer.Symbols()["Whitespace"]:   true,
		Lexer.Symbols()["Comment"]:      true,
		Lexer.Symbols()["BlockComment"]: true,
	}
)

// tokens lexes query and returns every significant token. A lexer error
// ends the scan early; the tokens read so far are still returned.
func tokens(query string) []lexer.Token {
	lex, err := Lexer.LexString("", query)
	if err != nil {
		return nil
	}

	var out []lexer.Token
	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			return out
		}
		if elidedTypes[tok.Type] {
			continue
		}
		out = append(out, tok)
	}
}
