// Package router maps request paths onto registered function patterns.
//
// A pattern is either an exact literal, or a proxy pattern whose literal
// prefix is followed by the {proxy+} marker. Proxy patterns require the
// wildcard to consume at least one character: the bare prefix itself never
// matches. Registration order decides ties; the first match wins.
package router

import "strings"

// ProxyMarker terminates a prefix+wildcard pattern.
const ProxyMarker = "{proxy+}"

// Matches reports whether a single pattern matches pathname.
func Matches(pattern, pathname string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ProxyMarker); ok {
		return strings.HasPrefix(pathname, prefix) && pathname != prefix
	}
	return pathname == pattern
}

// Match scans patterns in registration order and returns the index of the
// first match, or -1 when no pattern matches. No match is not an error at
// this layer; callers report it as "no function".
func Match(patterns []string, pathname string) int {
	for i, p := range patterns {
		if Matches(p, pathname) {
			return i
		}
	}
	return -1
}
