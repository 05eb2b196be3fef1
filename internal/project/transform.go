package project

import (
	"fmt"
	"strconv"
	"strings"
)

// transform rewrites document text before it reaches the backends.
type transform func(string) string

func identity(s string) string { return s }

// limitTransform truncates text to at most n characters, cutting on a rune
// boundary.
func limitTransform(n int) transform {
	return func(s string) string {
		if n <= 0 || len(s) <= n {
			return s
		}
		count := 0
		for i := range s {
			if count == n {
				return s[:i]
			}
			count++
		}
		return s
	}
}

// parseTransform parses a comma-separated transform chain from project
// configuration. Supported transforms: "pass" and "limit(N)". An empty
// spec is the identity.
func parseTransform(spec string) (transform, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return identity, nil
	}
	var chain []transform
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "pass":
			// no-op
		case strings.HasPrefix(part, "limit(") && strings.HasSuffix(part, ")"):
			arg := part[len("limit(") : len(part)-1]
			n, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("transform %q: limit needs a positive integer", part)
			}
			chain = append(chain, limitTransform(n))
		default:
			return nil, fmt.Errorf("unknown transform %q", part)
		}
	}
	if len(chain) == 0 {
		return identity, nil
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return func(s string) string {
		for _, t := range chain {
			s = t(s)
		}
		return s
	}, nil
}
