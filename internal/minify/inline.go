package minify

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var simpleSelectorRegex = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?((?:[.#][a-zA-Z_-][a-zA-Z0-9_-]*)*)$`)

type selector struct {
	tag     string
	id      string
	classes []string
}

func (s selector) specificity() int {
	n := 0
	if s.id != "" {
		n += 100
	}
	n += 10 * len(s.classes)
	if s.tag != "" {
		n++
	}
	return n
}

func (s selector) matches(tag string, attrs []html.Attribute) bool {
	if s.tag != "" && !strings.EqualFold(s.tag, tag) {
		return false
	}

	var id, class string
	for _, a := range attrs {
		switch a.Key {
		case "id":
			id = a.Val
		case "class":
			class = a.Val
		}
	}

	if s.id != "" && s.id != id {
		return false
	}

	have := strings.Fields(class)
	for _, want := range s.classes {
		found := false
		for _, c := range have {
			if c == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func parseSelector(text string) (selector, bool) {
	m := simpleSelectorRegex.FindStringSubmatch(text)
	if m == nil || text == "" {
		return selector{}, false
	}

	sel := selector{tag: strings.ToLower(m[1])}
	rest := m[2]
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, ".#")
		if end == -1 {
			end = len(rest)
		}
		name := rest[:end]
		rest = rest[end:]

		if kind == '#' {
			if sel.id != "" && sel.id != name {
				return selector{}, false
			}
			sel.id = name
		} else {
			sel.classes = append(sel.classes, name)
		}
	}

	return sel, true
}

type declaration struct {
	property string
	value    string
}

type styleRule struct {
	sel   selector
	decls []declaration
	order int
}

func parseDeclarations(block string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(block, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop == "" || val == "" {
			continue
		}
		decls = append(decls, declaration{property: prop, value: val})
	}
	return decls
}

// parseStylesheet splits css into rules it can inline and raw text it has to
// leave in a <style> element.
func parseStylesheet(css string, order *int) ([]styleRule, []string, []string) {
	css = commentRegex.ReplaceAllString(css, "")

	var rules []styleRule
	var leftover, warnings []string

	for {
		css = strings.TrimSpace(css)
		if css == "" {
			break
		}

		open := strings.IndexByte(css, '{')
		if open == -1 {
			warnings = append(warnings, fmt.Sprintf("unterminated css rule %q", css))
			break
		}

		prelude := strings.TrimSpace(css[:open])

		if strings.HasPrefix(prelude, "@") {
			end := matchingBrace(css, open)
			leftover = append(leftover, css[:end])
			warnings = append(warnings, fmt.Sprintf("at-rule %q kept in <style>", firstWord(prelude)))
			css = css[end:]
			continue
		}

		closeIdx := strings.IndexByte(css[open:], '}')
		if closeIdx == -1 {
			warnings = append(warnings, fmt.Sprintf("unterminated css rule %q", prelude))
			break
		}
		closeIdx += open
		body := css[open+1 : closeIdx]
		css = css[closeIdx+1:]

		decls := parseDeclarations(body)
		var unsupported []string
		for _, raw := range strings.Split(prelude, ",") {
			raw = strings.TrimSpace(raw)
			sel, ok := parseSelector(raw)
			if !ok {
				unsupported = append(unsupported, raw)
				warnings = append(warnings, fmt.Sprintf("selector %q cannot be inlined", raw))
				continue
			}
			*order++
			rules = append(rules, styleRule{sel: sel, decls: decls, order: *order})
		}
		if len(unsupported) > 0 {
			leftover = append(leftover, strings.Join(unsupported, ",")+"{"+strings.TrimSpace(body)+"}")
		}
	}

	return rules, leftover, warnings
}

func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t\n("); i != -1 {
		return s[:i]
	}
	return s
}

// InlineStyles moves the rules of every <style> element onto the style
// attribute of the elements they select, and drops the <style> elements.
// Only simple selectors (tag, .class, #id and combinations of those, comma
// lists allowed) are inlined; anything else stays behind in a single <style>
// element and is reported as a warning. Declarations already present in an
// element's style attribute win over stylesheet rules.
func InlineStyles(input string) (string, []string) {
	if !strings.Contains(strings.ToLower(input), "<style") {
		return input, nil
	}

	var (
		rules    []styleRule
		leftover []string
		warnings []string
		order    int
	)

	z := html.NewTokenizer(strings.NewReader(input))
	inStyle := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			inStyle = string(name) == "style"
		case html.EndTagToken:
			inStyle = false
		case html.TextToken:
			if inStyle {
				r, l, w := parseStylesheet(string(z.Text()), &order)
				rules = append(rules, r...)
				leftover = append(leftover, l...)
				warnings = append(warnings, w...)
			}
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		si, sj := rules[i].sel.specificity(), rules[j].sel.specificity()
		if si != sj {
			return si < sj
		}
		return rules[i].order < rules[j].order
	})

	var out bytes.Buffer
	z = html.NewTokenizer(strings.NewReader(input))
	skipping := false
	leftoverWritten := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				warnings = append(warnings, z.Err().Error())
			}
			break
		}

		// TagName and Token lowercase the tokenizer's buffer in place.
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data == "style" {
				skipping = tt == html.StartTagToken
				if !leftoverWritten && len(leftover) > 0 {
					out.WriteString("<style>")
					out.WriteString(strings.Join(leftover, ""))
					out.WriteString("</style>")
					leftoverWritten = true
				}
				continue
			}
			if applied, ok := applyRules(tok, rules); ok {
				out.WriteString(renderTag(applied, tt == html.SelfClosingTagToken))
				continue
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "style" {
				skipping = false
				continue
			}
		case html.TextToken:
			if skipping {
				continue
			}
		}

		out.Write(raw)
	}

	return out.String(), warnings
}

func applyRules(tok html.Token, rules []styleRule) (html.Token, bool) {
	var props []string
	values := make(map[string]string)

	for _, r := range rules {
		if !r.sel.matches(tok.Data, tok.Attr) {
			continue
		}
		for _, d := range r.decls {
			if _, seen := values[d.property]; !seen {
				props = append(props, d.property)
			}
			values[d.property] = d.value
		}
	}

	if len(props) == 0 {
		return tok, false
	}

	styleIdx := -1
	for i, a := range tok.Attr {
		if a.Key == "style" {
			styleIdx = i
			for _, d := range parseDeclarations(a.Val) {
				if _, seen := values[d.property]; !seen {
					props = append(props, d.property)
				}
				values[d.property] = d.value
			}
		}
	}

	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p+":"+values[p])
	}
	style := strings.Join(parts, ";")

	attrs := make([]html.Attribute, len(tok.Attr))
	copy(attrs, tok.Attr)
	if styleIdx >= 0 {
		attrs[styleIdx].Val = style
	} else {
		attrs = append(attrs, html.Attribute{Key: "style", Val: style})
	}
	tok.Attr = attrs

	return tok, true
}

// renderTag writes a start tag without entity-escaping attribute values, so
// Razor expressions inside attributes survive untouched.
func renderTag(tok html.Token, selfClosing bool) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tok.Data)
	for _, a := range tok.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		quote := byte('"')
		if strings.ContainsRune(a.Val, '"') {
			quote = '\''
		}
		b.WriteByte('=')
		b.WriteByte(quote)
		b.WriteString(a.Val)
		b.WriteByte(quote)
	}
	if selfClosing {
		b.WriteString("/>")
	} else {
		b.WriteByte('>')
	}
	return b.String()
}
