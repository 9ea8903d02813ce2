// Package errmsg defines the error kinds spec.md §7 enumerates, the Ctx
// naming context for a host-side error-formatting helper, and the
// Summarize diagnostic formatter. Ctx is adapted from the teacher's
// author/errmsg package, which builds the same kind of varargs-to-string
// C helper for its own diagnostics; here it is generalized from a single
// "line number" context to the group/code-block/token context our errors
// need.
package errmsg

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// InputValidationError reports that the model violates a documented
// invariant. Fatal at the boundary; never recovered.
type InputValidationError struct {
	Detail string
}

func (e *InputValidationError) Error() string {
	return "input validation: " + e.Detail
}

// MergeCompatibilityError indicates a generator bug: a group ended up in a
// merged group whose canMerge predicate rejects it.
type MergeCompatibilityError struct {
	MergedGroupRole  string
	MergedGroupIndex int
	GroupName        string
}

func (e *MergeCompatibilityError) Error() string {
	return fmt.Sprintf("assertion failed: group %q is not compatible with merged %s group %d",
		e.GroupName, e.MergedGroupRole, e.MergedGroupIndex)
}

// UnresolvedSubstitutionError reports a $(...) token that survived the
// substitution pass. The diagnostic names the group, the code block, and
// the offending token, per spec.md §4.2/§7.
type UnresolvedSubstitutionError struct {
	GroupName string
	CodeBlock string
	Token     string
}

func (e *UnresolvedSubstitutionError) Error() string {
	return fmt.Sprintf("unreplaced variable %q in %s : %s", e.Token, e.GroupName, e.CodeBlock)
}

// UnbalancedScopeError reports that CodeStream.Close's id did not match
// the most recently opened scope's id.
type UnbalancedScopeError struct {
	Want, Got int
}

func (e *UnbalancedScopeError) Error() string {
	return fmt.Sprintf("unbalanced scope: close(%d) does not match most recent open(%d)", e.Got, e.Want)
}

// NotYetImplementedError flags a code path the generator knows about but
// does not yet emit, e.g. extra-global-parameter push/pull outside
// automatic-copy mode.
type NotYetImplementedError struct {
	What string
}

func (e *NotYetImplementedError) Error() string {
	return "not yet implemented: " + e.What
}

// BackendCompileError is a runtime-only error the *generated* host code
// raises; the core never constructs one itself, but emits the C helper
// that does (see internal/host's EmitBuildProgram). Kept here because
// it is part of the error-kind taxonomy spec.md §7 enumerates.
type BackendCompileError struct {
	CompilerLog string
}

func (e *BackendCompileError) Error() string {
	return "backend compile error:\n" + e.CompilerLog
}

// Ctx holds the name prefix and the uniquified function name of the
// host-side error-formatting helper for one generated program, mirroring
// the teacher's errmsg.Ctx (which does the same for a single line-number
// message). The uniquifying namer is passed to NewCtx as a plain function,
// so internal/errmsg imports no naming package.
type Ctx struct {
	Prefix   string
	FuncName string
}

// NewCtx builds an error-formatting context for a generated program with
// the given name prefix and a uniquified function name.
func NewCtx(prefix string, name func(string) string) *Ctx {
	return &Ctx{
		Prefix:   prefix,
		FuncName: name(prefix + "Errmsg"),
	}
}

// Summarize renders a short, humanized diagnostic line for embedding as a
// C comment above an emitted kernel, e.g. "// 3,200 threads, 48 kB".
func Summarize(threads int, bytes uint64) string {
	return fmt.Sprintf("%s threads, %s", humanize.Comma(int64(threads)), humanize.Bytes(bytes))
}
