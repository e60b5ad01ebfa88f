package runtime

import (
	"regexp"
	"strings"
)

// scriptFenceRegex matches a fenced code block tagged `script`, e.g.
//
//	```script
//	readFile("a.go")
//	```
var scriptFenceRegex = regexp.MustCompile("(?s)```script\\s*\\n(.*?)```")

// ExtractScriptBlocks finds fenced blocks tagged as script in modelOutput,
// concatenating them in order. Empty blocks are ignored (spec.md §4.8).
func ExtractScriptBlocks(modelOutput string) []string {
	matches := scriptFenceRegex.FindAllStringSubmatch(modelOutput, -1)
	var out []string
	for _, m := range matches {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}
		out = append(out, body)
	}
	return out
}

// outputTagRegex matches a well-formed <output>...</output> pair.
var outputTagRegex = regexp.MustCompile(`(?s)<output>(.*?)</output>`)

// ExtractOutputSection extracts and concatenates the contents of every
// well-formed <output>...</output> pair in text, joined by a blank line.
// If no closed pair is present at all (including a dangling opening tag
// with no matching close), the original text is returned unchanged
// (SPEC_FULL.md §6 item 1, grounded on original executor.rs's
// extract_output_section test suite).
func ExtractOutputSection(text string) string {
	matches := outputTagRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text
	}
	sections := make([]string, 0, len(matches))
	for _, m := range matches {
		sections = append(sections, strings.TrimSpace(m[1]))
	}
	return strings.Join(sections, "\n\n")
}
