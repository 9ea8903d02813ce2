// Package dispatch implements the contiguous, non-overlapping thread-id
// range routing spec.md §4.5 specifies for merged-group level dispatch:
// given a sequence of padded work sizes, emit one "if (id in range) { ...
// }" per item, each guarding a contiguous slice of the kernel's global
// thread-id space, with a local id ("lid") substituted in for every item
// except the first (which gets to compare id directly against its upper
// bound, since its lower bound is always zero). This is the Go-generics
// rebuild of GeNN's CUDA backend's genParallelGroup (original_source's
// backend/cuda_backend.h) — the exact elision of the lower-bound check on
// the first group, and the running idStart accumulator shared across
// calls within one kernel, are both preserved from that algorithm.
package dispatch

import (
	"fmt"

	"snngen/internal/codestream"
	"snngen/internal/subst"
)

// Handler emits the body of one dispatched item's range, using popSubs
// (which already has "id" bound to either "id" or "lid" as appropriate)
// to resolve any $(id)-style tokens in the item's code blocks.
type Handler[T any] func(cs *codestream.Stream, item T, popSubs *subst.Frame) error

const scopeID = 1

// Dispatch emits one guarded range per item in items, using paddedSize to
// get each item's thread count and name to label its comment. idStart is
// the running thread-id offset: callers that dispatch several item lists
// into one kernel (e.g. true-spike groups followed by spike-event groups)
// share one *idStart across the calls so the ranges stay contiguous.
func Dispatch[T any](cs *codestream.Stream, kernelSubs *subst.Frame, idStart *int, items []T, paddedSize func(T) int, name func(T) string, handler Handler[T]) error {
	for _, item := range items {
		size := paddedSize(item)
		cs.Line(fmt.Sprintf("// Group %s", name(item)))

		popSubs := subst.NewFrame(kernelSubs)
		if *idStart == 0 {
			cs.Line(fmt.Sprintf("if (id < %d)", size))
		} else {
			cs.Line(fmt.Sprintf("if (id >= %d && id < %d)", *idStart, *idStart+size))
		}
		cs.Open(scopeID)
		if *idStart == 0 {
			if err := popSubs.AddVarSubstitution("id", "id", false); err != nil {
				return err
			}
		} else {
			cs.Line(fmt.Sprintf("const unsigned int lid = id - %d;", *idStart))
			if err := popSubs.AddVarSubstitution("id", "lid", false); err != nil {
				return err
			}
		}

		if err := handler(cs, item, popSubs); err != nil {
			return err
		}

		*idStart += size
		cs.MustClose(scopeID)
	}
	return nil
}
