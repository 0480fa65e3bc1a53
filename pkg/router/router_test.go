package router

import "testing"

func TestMatchesExact(t *testing.T) {
	if !Matches("/hello", "/hello") {
		t.Fatalf("exact pattern should match identical path")
	}
	if Matches("/hello", "/hello/world") {
		t.Fatalf("exact pattern must not match a longer path")
	}
	if Matches("/hello", "/hell") {
		t.Fatalf("exact pattern must not match a prefix of itself")
	}
}

func TestMatchesProxyRequiresSuffix(t *testing.T) {
	p := "/api/{proxy+}"
	if Matches(p, "/api/") {
		t.Fatalf("proxy pattern must not match its bare prefix")
	}
	if !Matches(p, "/api/x") {
		t.Fatalf("proxy pattern should match prefix plus one char")
	}
	if !Matches(p, "/api/users/42/orders") {
		t.Fatalf("proxy pattern should match deep paths")
	}
	if Matches(p, "/apix/y") {
		t.Fatalf("proxy pattern must not match a different prefix")
	}
}

func TestMatchFirstWins(t *testing.T) {
	patterns := []string{"/a/{proxy+}", "/a/b", "/c"}
	if i := Match(patterns, "/a/b"); i != 0 {
		t.Fatalf("registration order should decide ties, got index %d", i)
	}
	if i := Match(patterns, "/c"); i != 2 {
		t.Fatalf("expected index 2 for /c, got %d", i)
	}
	if i := Match(patterns, "/nope"); i != -1 {
		t.Fatalf("expected -1 for unmatched path, got %d", i)
	}
}
