package runtime

import "regexp"

// StripTypeAnnotations removes TypeScript-only syntax from code, yielding
// plain ECMAScript the goja engine can evaluate (spec.md §4.8: "strip type
// annotations if present (syntactic layer only)"). This is a lexical,
// best-effort pass over the narrow surface the model's short scripts
// actually use — parameter/variable/return type annotations, interface and
// type-alias declarations, non-null assertions, and `as` casts — not a
// full TypeScript parser. No TypeScript-parser library exists anywhere in
// the corpus and goja only accepts plain ECMAScript, so the original's
// SWC-based `strip_typescript_types` (a real compiler pass) has no Go
// library to adopt; this scanner covers the same annotation positions SWC
// strips, grounded on the same function's test expectations.
func StripTypeAnnotations(code string) string {
	out := code
	out = interfaceDeclRegex.ReplaceAllString(out, "")
	out = typeAliasRegex.ReplaceAllString(out, "")
	out = asCastRegex.ReplaceAllString(out, "$1")
	out = nonNullAssertRegex.ReplaceAllString(out, "$1$2")
	out = returnTypeAnnotationRegex.ReplaceAllString(out, "$1 {")
	out = paramTypeAnnotationRegex.ReplaceAllString(out, "$1$2")
	out = varTypeAnnotationRegex.ReplaceAllString(out, "$1 $2")
	return out
}

var (
	// interfaceDeclRegex removes a whole `interface Name { ... }` block.
	// Non-greedy body match is adequate for the single-level, unnested
	// interfaces model-emitted scripts actually use.
	interfaceDeclRegex = regexp.MustCompile(`(?s)interface\s+\w+\s*(<[^>]*>)?\s*\{[^{}]*\}\s*`)

	// typeAliasRegex removes a `type Name = ...;` statement.
	typeAliasRegex = regexp.MustCompile(`type\s+\w+\s*(<[^>]*>)?\s*=\s*[^;\n]+;?`)

	// asCastRegex strips `expr as Type` down to `expr`.
	asCastRegex = regexp.MustCompile(`(\w|\)|\])\s+as\s+[A-Za-z_][\w.<>\[\], |]*`)

	// nonNullAssertRegex strips a non-null assertion `expr!` down to `expr`,
	// avoiding `!=`/`!==`/a leading logical-not by requiring the `!` to
	// immediately follow an identifier/`)`/`]` with no intervening space
	// and not be followed by `=`.
	nonNullAssertRegex = regexp.MustCompile(`(\w|\)|\])!([^=]|$)`)

	// returnTypeAnnotationRegex strips `): ReturnType {` down to `) {`.
	returnTypeAnnotationRegex = regexp.MustCompile(`(\))\s*:\s*[A-Za-z_][\w.<>\[\], |]*\s*\{`)

	// paramTypeAnnotationRegex strips `name: Type` inside a parameter list
	// down to `name`, before a `,` or `)`.
	paramTypeAnnotationRegex = regexp.MustCompile(`(\b\w+\??)\s*:\s*[A-Za-z_][\w.<>\[\], |]*(\s*[,)])`)

	// varTypeAnnotationRegex strips `let/const/var name: Type =` down to
	// `let/const/var name =`.
	varTypeAnnotationRegex = regexp.MustCompile(`(\b(?:let|const|var)\s+\w+)\s*:\s*[A-Za-z_][\w.<>\[\], |]*\s*(=)`)
)
