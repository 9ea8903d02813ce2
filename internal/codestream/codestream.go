// Package codestream implements the indented, brace-scoped text writer
// spec.md §4.1 requires: every emitter in this module writes through a
// Stream so that opened scopes are guaranteed to close, and close braces
// always take their indentation back. Grounded on two shapes from the
// retrieval pack: eyot's output/textwriter (indent depth + line-start
// bookkeeping) and the teacher's author/cgen.Block (brace-on-its-own-line
// convention) — combined here into the explicit open(id)/close(id) scope
// contract spec.md calls for, which neither teacher shape has on its own
// because both bake brace placement into a single composed value rather
// than a mutable running stream.
package codestream

import (
	"fmt"
	"strings"

	"snngen/internal/errmsg"
)

const indentUnit = "    "

// Stream is a text sink with open/close scope tokens.
type Stream struct {
	buf         strings.Builder
	indent      int
	atLineStart bool
	scopes      []int
}

// New returns an empty Stream at indent depth zero.
func New() *Stream {
	return &Stream{atLineStart: true}
}

// WriteString appends text, honoring indentation at the start of every
// line within text. Embedded newlines are preserved.
func (s *Stream) WriteString(text string) {
	for len(text) > 0 {
		if s.atLineStart && text != "\n" {
			s.buf.WriteString(strings.Repeat(indentUnit, s.indent))
			s.atLineStart = false
		}
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			s.buf.WriteString(text)
			return
		}
		s.buf.WriteString(text[:i+1])
		s.atLineStart = true
		text = text[i+1:]
	}
}

// Printf is WriteString with fmt.Sprintf formatting.
func (s *Stream) Printf(format string, args ...interface{}) {
	s.WriteString(fmt.Sprintf(format, args...))
}

// Line writes text followed by a newline.
func (s *Stream) Line(text string) {
	s.WriteString(text)
	s.WriteString("\n")
}

// Open writes "{" on the current line, starts a new line, and increases
// indentation. id is recorded so the matching Close can be verified.
func (s *Stream) Open(id int) {
	s.WriteString("{\n")
	s.indent++
	s.scopes = append(s.scopes, id)
}

// Close decreases indentation and writes "}" on its own line. id must
// match the most recently opened scope's id; a mismatch is an
// UnbalancedScopeError, per spec.md §4.1/§7 ("fail fast if not").
func (s *Stream) Close(id int) error {
	if len(s.scopes) == 0 {
		return &errmsg.UnbalancedScopeError{Want: -1, Got: id}
	}
	top := s.scopes[len(s.scopes)-1]
	if top != id {
		return &errmsg.UnbalancedScopeError{Want: top, Got: id}
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
	s.indent--
	s.WriteString("}\n")
	return nil
}

// MustClose is Close, but panics on mismatch. Scope balance is always a
// generator bug (spec.md §7), never a recoverable input error, so call
// sites that already know the id is correct use this to avoid threading
// an error return through every emitter.
func (s *Stream) MustClose(id int) {
	if err := s.Close(id); err != nil {
		panic(err)
	}
}

// Depth returns the current indentation depth, mostly useful in tests.
func (s *Stream) Depth() int { return s.indent }

// Balanced reports whether every opened scope has been closed.
func (s *Stream) Balanced() bool { return len(s.scopes) == 0 }

// String flushes the stream's contents. No other buffering guarantee is
// made beyond this.
func (s *Stream) String() string { return s.buf.String() }

// Scope is a scoped scope: it opens on construction and guarantees
// release on every exit path via Close, the pattern original_source's
// CodeStream::Scope implements (a C++ RAII guard). Usage:
//
//	sc := codestream.OpenScope(s, 1)
//	defer sc.Close()
type Scope struct {
	s  *Stream
	id int
}

// OpenScope opens a scope and returns a guard that closes it.
func OpenScope(s *Stream, id int) *Scope {
	s.Open(id)
	return &Scope{s: s, id: id}
}

// Close releases the scope. Safe to call via defer; panics on mismatch
// exactly like MustClose, since by construction the id always matches
// unless some other emitter closed out of order — a generator bug.
func (sc *Scope) Close() {
	sc.s.MustClose(sc.id)
}
