// Package mergedstruct emits the per-merged-group device struct type, the
// device-side array of that struct, and the host-side build routine that
// populates the array from each member's data — spec.md §4.4. Grounded
// on the teacher's author/tobuild package, which builds a similarly
// shaped "one struct field per piece of per-instance state, one build
// routine per struct" pairing for NN-512's per-layer tensors; the
// constant-folding rule ("a field exists only if members disagree") has
// no teacher analogue and is built directly from spec.md, implemented
// with Go generics over the merged group's member type.
package mergedstruct

import (
	"fmt"

	"snngen/internal/cgen"
	"snngen/internal/merge"
)

// Field describes one candidate struct field: its C type, and a function
// deriving its value expression from a member. Value is evaluated once
// per member when deciding whether the field varies, and again when
// emitting the host build routine, so it must be pure and side-effect
// free.
type Field[T any] struct {
	Name  string
	CType cgen.Gen
	Value func(member T) cgen.Gen
}

// renderedText renders a Gen to a comparable string; used only to test
// whether two members' values for a field are textually identical.
func renderedText(g cgen.Gen) string {
	if g == nil {
		return ""
	}
	return string(g.Append(nil))
}

// varies reports whether at least two members produce different
// rendered text for field.Value — the constant-folding test spec.md
// §4.4 specifies ("include a field iff at least two members disagree").
// A merged group of exactly one member has nothing to compare against,
// so there is no constant to fold to: every kernel body emitted for it
// still dereferences group->field the same way a multi-member merge's
// body does, so the field is kept unconditionally.
func varies[T any](members []T, value func(T) cgen.Gen) bool {
	if len(members) < 2 {
		return true
	}
	first := renderedText(value(members[0]))
	for _, m := range members[1:] {
		if renderedText(value(m)) != first {
			return true
		}
	}
	return false
}

// DeriveFields filters candidates down to the fields that actually vary
// across members. Fields that are constant across every member are
// folded away: their value still reaches emitted code, just as a literal
// baked into the shared kernel body by a different stage, not as a
// struct field.
func DeriveFields[T any](members []T, candidates []Field[T]) []Field[T] {
	var kept []Field[T]
	for _, c := range candidates {
		if varies(members, c.Value) {
			kept = append(kept, c)
		}
	}
	return kept
}

// StructName returns the stable struct type name spec.md §6 fixes:
// Merged<Role>Group<Index>.
func StructName(role merge.Role, index int) string {
	return fmt.Sprintf("Merged%sGroup%d", role.Camel(), index)
}

// ArrayName returns the stable device array name: d_merged<Role>Group<Index>.
func ArrayName(role merge.Role, index int) string {
	return fmt.Sprintf("d_merged%sGroup%d", role.Camel(), index)
}

// BuildFuncName returns the stable host build-routine name.
func BuildFuncName(role merge.Role, index int) string {
	return fmt.Sprintf("pushMerged%sGroup%dToDevice", role.Camel(), index)
}

// EmitStruct builds the device-side struct type declaration for a merged
// group's derived fields.
func EmitStruct[T any](role merge.Role, index int, fields []Field[T]) cgen.Gen {
	var body cgen.Stmts
	for _, f := range fields {
		body = append(body, cgen.Field{Type: f.CType, What: cgen.Vb(f.Name)})
	}
	return cgen.StructDef{Name: StructName(role, index), Fields: body}
}

// EmitArrayDecl builds the device-side array-of-struct declaration, sized
// to the merged group's member count.
func EmitArrayDecl(role merge.Role, index int, memberCount int) cgen.Gen {
	return cgen.Var{
		Type: cgen.Vb(StructName(role, index)),
		What: cgen.Elem{Arr: cgen.Vb(ArrayName(role, index)), Idx: cgen.IntLit(int64(memberCount))},
	}
}

// StartIDArrayName returns the stable name for a merged group's per-member
// thread-id offset array: d_merged<Role>GroupStartID<Index>. Grounded on
// original_source's genGroupStartIDs naming convention.
func StartIDArrayName(role merge.Role, index int) string {
	return fmt.Sprintf("d_merged%sGroupStartID%d", role.Camel(), index)
}

// EmitStartIDArray emits the constant per-member thread-id offset array a
// merged group's kernel handler scans to resolve which member a given
// thread-in-range belongs to (spec.md §4.7 step 3's "per-merged-group
// start-id constants", two-layer dispatch per the original's
// genGroupStartIDs/merged-ladder split).
func EmitStartIDArray(role merge.Role, index int, startIDs []int) cgen.Gen {
	elems := make(cgen.CommaSpaced, len(startIDs))
	for i, id := range startIDs {
		elems[i] = cgen.IntLit(int64(id))
	}
	return cgen.Var{
		Type: cgen.Gens{cgen.Const, cgen.Vb(" unsigned int")},
		What: cgen.Elem{Arr: cgen.Vb(StartIDArrayName(role, index)), Idx: nil},
		Init: cgen.Brace{Inner: elems},
	}
}

// EmitBuildRoutine builds the host-side function that fills one struct
// per member. The function takes no parameters: each field's Value
// expression for a member is assigned directly to that member's array
// element.
func EmitBuildRoutine[T any](role merge.Role, index int, members []T, fields []Field[T]) cgen.Gen {
	var body cgen.Stmts
	for i, m := range members {
		for _, f := range fields {
			lhs := cgen.Dot{Expr: cgen.Elem{Arr: cgen.Vb(ArrayName(role, index)), Idx: cgen.IntLit(int64(i))}, Name: f.Name}
			body = append(body, cgen.Assign{Expr1: lhs, Expr2: f.Value(m)})
		}
	}
	return cgen.FuncDef{
		ReturnType: cgen.Void,
		Name:       BuildFuncName(role, index),
		Params:     cgen.Void,
		Body:       body,
	}
}
