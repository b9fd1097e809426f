package rpc

import (
	"path"
	"strings"
)

// Matcher selects the endpoints an interceptor is attached to.
type Matcher interface {
	Match(service, method string) bool
}

// MatcherFunc adapts a function to a Matcher.
type MatcherFunc func(service, method string) bool

func (f MatcherFunc) Match(service, method string) bool { return f(service, method) }

// Within matches endpoints whose "Service.Method" ID matches any of the glob
// patterns. "*" matches any run of characters, so "Math.*" selects every
// method of Math, "*.Get*" every getter, and "*" everything. A pattern
// without a dot names a whole service. Malformed patterns match nothing.
func Within(patterns ...string) Matcher {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "*" && !strings.Contains(p, ".") {
			p += ".*"
		}
		normalized = append(normalized, p)
	}
	return MatcherFunc(func(service, method string) bool {
		id := service + "." + method
		for _, p := range normalized {
			// path.Match stops "*" at '/', which never appears in IDs.
			if ok, err := path.Match(p, id); err == nil && ok {
				return true
			}
		}
		return false
	})
}

type scopedInterceptors struct {
	matcher Matcher
	unary   UnaryInterceptor
	stream  StreamInterceptor
}
