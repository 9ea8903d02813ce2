package codestream

import (
	"strings"
	"testing"

	"snngen/internal/errmsg"
)

func TestOpenCloseIndents(t *testing.T) {
	s := New()
	s.Line("void foo()")
	s.Open(1)
	s.Line("int x = 0;")
	s.Open(2)
	s.Line("x++;")
	s.MustClose(2)
	s.MustClose(1)
	if !s.Balanced() {
		t.Fatal("expected balanced scopes")
	}
	want := "void foo()\n{\n    int x = 0;\n    {\n        x++;\n    }\n}\n"
	if got := s.String(); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestCloseMismatchIsUnbalancedScopeError(t *testing.T) {
	s := New()
	s.Open(1)
	err := s.Close(2)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*errmsg.UnbalancedScopeError); !ok {
		t.Fatalf("expected *errmsg.UnbalancedScopeError, got %T", err)
	}
}

func TestScopeGuardCloses(t *testing.T) {
	s := New()
	func() {
		sc := OpenScope(s, 7)
		defer sc.Close()
		s.Line("work();")
	}()
	if !s.Balanced() {
		t.Fatal("expected scope guard to close on exit")
	}
	if !strings.Contains(s.String(), "    work();\n") {
		t.Fatalf("unexpected output: %q", s.String())
	}
}

func TestCloseWithNoOpenScopes(t *testing.T) {
	s := New()
	if err := s.Close(1); err == nil {
		t.Fatal("expected an error closing with no open scopes")
	}
}
