package pubsub

import (
	"fmt"
	"regexp"
	"strings"
)

// compileGlob translates a glob pattern into an anchored regexp. `*`
// matches any run of characters, `?` exactly one; everything else is
// literal.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("pubsub: invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// MatchGlob reports whether name matches the glob pattern. An invalid
// pattern matches nothing.
func MatchGlob(pattern, name string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}
