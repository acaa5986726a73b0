// Package minify turns hand-edited Razor markup into its published,
// whitespace-collapsed form.
//
// Minify is a pure text transform. Directive lines at the top of a file
// (@using, @model, @inject, ...) are lifted out before the body is collapsed
// and put back afterwards, one per line and in their original order, because
// the Razor compiler needs them line-isolated. Inside the body, comments are
// removed, leading whitespace and line breaks are dropped, and the @section /
// @functions block openers are moved back onto a line of their own.
//
// Files with a .js extension go through esbuild instead (see Esbuild), and the
// optional stylesheet inliner (InlineStyles) can run over Razor bodies before
// they are collapsed.
package minify

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// <!-- -->, /* */ and @* *@, shortest match, across lines.
	commentRegex = regexp.MustCompile(`(?s)<!--.*?-->|/\*.*?\*/|@\*.*?\*@`)

	// Leading whitespace of a line, or trailing whitespace plus its line break.
	emptyLineRegex = regexp.MustCompile(`(?m)^[\s\v]+|[\s\v]*[\v\n\r]`)

	// Block openers that must start a line in the published file.
	blockRegex = regexp.MustCompile(`@(?:section|functions)\s\w+\s?\{`)
)

// Minify returns the published form of a Razor document. It never fails:
// input it does not understand comes back collapsed but otherwise untouched.
func Minify(input string) string {
	out, _ := minifyRazor(input, false)
	return out
}

func minifyRazor(input string, inline bool) (string, []string) {
	headers, body := extractHeaders(input)

	var warnings []string
	if inline {
		body, warnings = InlineStyles(body)
	}

	body = commentRegex.ReplaceAllString(body, "")
	body = emptyLineRegex.ReplaceAllString(body, "")
	body = rebreakBlocks(body)

	return joinHeaders(headers, body), warnings
}

// extractHeaders lifts directive lines off the top of input. A line is a
// header when the remaining text starts with '@' and the character before the
// first line break is neither '{' nor '}'; extraction stops at the first line
// that fails either test. A trailing '\r' is not part of the line.
//
// The brace rule is kept exactly as the published tool applies it: it stops
// at "@section X {" or "@if (x) {" style openers but not, for instance, at an
// opener whose brace sits on the next line.
func extractHeaders(input string) ([]string, string) {
	var headers []string

	for {
		if strings.HasPrefix(input, "@*") {
			end := strings.Index(input[2:], "*@")
			if end == -1 {
				break
			}
			input = strings.TrimLeftFunc(input[end+4:], unicode.IsSpace)
			continue
		}

		if !strings.HasPrefix(input, "@") {
			break
		}

		idx := strings.IndexByte(input, '\n')
		if idx == -1 {
			break
		}

		line := strings.TrimSuffix(input[:idx], "\r")
		if line == "" {
			break
		}

		last := line[len(line)-1]
		if last == '{' || last == '}' {
			break
		}

		// A comment opened on this line and closed on a later one is cut
		// out whole, so neither half survives in the header or the body.
		if start, end, ok := spanningComment(input, idx); ok {
			input = strings.TrimRight(input[:start], " \t") + input[end:]
			continue
		}

		if stripped := commentRegex.ReplaceAllString(line, ""); stripped != line {
			stripped = strings.TrimRightFunc(stripped, unicode.IsSpace)
			if strings.HasSuffix(stripped, "{") || strings.HasSuffix(stripped, "}") {
				break
			}
			input = input[idx+1:]
			if stripped != "" {
				headers = append(headers, stripped)
			}
			continue
		}

		input = input[idx+1:]
		headers = append(headers, line)
	}

	return headers, input
}

// spanningComment finds the first comment that starts before eol and ends
// after it.
func spanningComment(input string, eol int) (int, int, bool) {
	off := 0
	for off < eol {
		loc := commentRegex.FindStringIndex(input[off:])
		if loc == nil {
			return 0, 0, false
		}
		start, end := off+loc[0], off+loc[1]
		if start >= eol {
			return 0, 0, false
		}
		if end > eol {
			return start, end, true
		}
		off = end
	}
	return 0, 0, false
}

// rebreakBlocks puts a line break in front of every @section / @functions
// opener that is not already at the start of a line. The result is built in
// one pass, so earlier insertions never shift later match offsets.
func rebreakBlocks(body string) string {
	locs := blockRegex.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return body
	}

	var b strings.Builder
	b.Grow(len(body) + len(locs))

	prev := 0
	for _, loc := range locs {
		start := loc[0]
		if start == 0 {
			continue
		}

		segment := body[prev:start]
		if strings.HasSuffix(segment, "\n") {
			b.WriteString(segment)
		} else {
			b.WriteString(strings.TrimRight(segment, " \t"))
			b.WriteByte('\n')
		}
		prev = start
	}
	b.WriteString(body[prev:])

	return b.String()
}

func joinHeaders(headers []string, body string) string {
	if len(headers) == 0 {
		return body
	}

	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteString(body)

	return b.String()
}
