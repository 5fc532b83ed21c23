// Package scope implements the OAuth scope value as a set of permission
// tokens with a subset-based partial order (RFC 6749 Section 3.3).
package scope

import (
	"fmt"
	"sort"
	"strings"
)

// Scope is an immutable set of scope tokens. The zero value is the empty
// scope, which is valid and is a subset of every other scope.
type Scope struct {
	tokens map[string]struct{}
}

// Parse parses a space-separated scope string per RFC 6749 Section 3.3.
// Scope tokens are case-sensitive and limited to printable ASCII excluding
// space, double quote, and backslash (%x21 / %x23-5B / %x5D-7E). Duplicate
// tokens are collapsed. The empty string parses to the empty scope.
func Parse(s string) (Scope, error) {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Split(s, " ") {
		if tok == "" {
			// Consecutive or leading/trailing separators contribute no token.
			continue
		}
		for i := 0; i < len(tok); i++ {
			if !validScopeChar(tok[i]) {
				return Scope{}, fmt.Errorf("invalid character %q in scope token %q", tok[i], tok)
			}
		}
		tokens[tok] = struct{}{}
	}
	return Scope{tokens: tokens}, nil
}

// MustParse is Parse for statically known scope strings; it panics on error.
func MustParse(s string) Scope {
	sc, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sc
}

// validScopeChar reports whether c is allowed in a scope token:
// %x21 / %x23-5B / %x5D-7E (printable ASCII minus SP, DQUOTE, and backslash).
func validScopeChar(c byte) bool {
	return c == 0x21 || (c >= 0x23 && c <= 0x5B) || (c >= 0x5D && c <= 0x7E)
}

// IsSubsetOf reports whether every token of s is also a token of other.
// This is the partial order used to decide whether a granted scope satisfies
// a required one: two scopes may be incomparable in either direction.
func (s Scope) IsSubsetOf(other Scope) bool {
	for tok := range s.tokens {
		if _, ok := other.tokens[tok]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both scopes contain exactly the same tokens.
func (s Scope) Equal(other Scope) bool {
	return len(s.tokens) == len(other.tokens) && s.IsSubsetOf(other)
}

// IsEmpty reports whether the scope contains no tokens.
func (s Scope) IsEmpty() bool {
	return len(s.tokens) == 0
}

// Len returns the number of distinct tokens.
func (s Scope) Len() int {
	return len(s.tokens)
}

// Contains reports whether the scope contains the given token.
func (s Scope) Contains(token string) bool {
	_, ok := s.tokens[token]
	return ok
}

// Tokens returns the scope tokens in lexicographic order.
func (s Scope) Tokens() []string {
	out := make([]string, 0, len(s.tokens))
	for tok := range s.tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// String serializes the scope as a space-joined token string in
// lexicographic order, so formatting is deterministic and Parse(String())
// round-trips.
func (s Scope) String() string {
	return strings.Join(s.Tokens(), " ")
}
