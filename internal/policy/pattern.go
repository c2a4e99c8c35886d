package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled path or command glob.
//
// Only two wildcards exist: '*' matches any run of characters (including '/')
// and '?' matches exactly one character. Every other character is literal, so
// filesystem names containing '[', '{', '!' or '\' never act as operators.
// Matching is anchored to the whole candidate.
type Pattern struct {
	raw string
	m   matcher
}

type matcher interface {
	Match(string) bool
}

// runeMatcher adapts an anchored regexp to matcher.
type runeMatcher struct {
	re *regexp.Regexp
}

func (r runeMatcher) Match(s string) bool {
	return r.re.MatchString(s)
}

// CompilePattern translates a glob into a matcher.
//
// Patterns containing '?' compile to an anchored regexp. gobwas/glob v0.2.3
// measures fixed-length patterns in bytes, so its '?' cannot match a
// multi-byte character.
func CompilePattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}

	if strings.ContainsRune(raw, '?') {
		re, err := regexp.Compile(translateRegexp(raw))
		if err != nil {
			return Pattern{}, fmt.Errorf("compile pattern %q: %w", raw, err)
		}
		return Pattern{raw: raw, m: runeMatcher{re: re}}, nil
	}

	g, err := glob.Compile(translateGlob(raw))
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, m: g}, nil
}

// Match reports whether candidate matches the whole pattern.
func (p Pattern) Match(candidate string) bool {
	if p.m == nil {
		return false
	}
	return p.m.Match(candidate)
}

func (p Pattern) String() string {
	return p.raw
}

// translateGlob quotes every literal run and keeps '*' and '?' as wildcards.
func translateGlob(raw string) string {
	return translate(raw, glob.QuoteMeta, "*", "?")
}

// translateRegexp builds an anchored regexp where '.' matches one rune,
// newlines included.
func translateRegexp(raw string) string {
	return `(?s)^` + translate(raw, regexp.QuoteMeta, ".*", ".") + `$`
}

func translate(raw string, quote func(string) string, star, single string) string {
	var out, literal strings.Builder
	flush := func() {
		if literal.Len() == 0 {
			return
		}
		out.WriteString(quote(literal.String()))
		literal.Reset()
	}

	for _, r := range raw {
		switch r {
		case '*':
			flush()
			out.WriteString(star)
		case '?':
			flush()
			out.WriteString(single)
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	return out.String()
}

func compilePatterns(raws []string, expand func(string) string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(raws))
	for _, raw := range raws {
		p, err := CompilePattern(expand(raw))
		if err != nil {
			return nil, err
		}
		p.raw = raw
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func matchAny(patterns []Pattern, candidate string) (Pattern, bool) {
	for _, p := range patterns {
		if p.Match(candidate) {
			return p, true
		}
	}
	return Pattern{}, false
}
