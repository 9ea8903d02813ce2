// Package merge groups structurally-compatible neuron/synapse groups into
// merged groups that share one emitted kernel body, per spec.md §4.3. It
// is the direct Go-generics rebuild of GeNN's ModelSpecMerged::
// createMergedGroups (original_source's
// code_generator/modelSpecMerged.h): pop a group off the back of the
// work list, scan existing proto-merged groups front-to-back for the
// first one whose archetype (its first member) is compatible, append to
// it on a hit, else start a new proto-merged group. The order groups are
// popped in (back of the slice first) and the order canMerge is tested in
// (existing groups in append order) are both part of the original
// algorithm's behavior, not incidental, so this keeps them.
package merge

import "sort"

// Role names the kernel-generation purpose a MergedGroup serves. A single
// NeuronGroup or SynapseGroup can appear in several merged groups under
// different roles simultaneously — e.g. a SynapseGroup is merged once for
// PresynapticUpdate and, independently, once for SynapseSparseInit.
type Role int

const (
	NeuronUpdate Role = iota
	NeuronSpikeQueueUpdate
	NeuronInit
	PresynapticUpdate
	PostsynapticUpdate
	SynapseDynamics
	SynapseDenseInit
	SynapseConnectivityInit
	SynapseSparseInit
	SynapseDendriticDelayUpdate
)

// Camel returns the PascalCase identifier fragment used to build the
// emitted struct/array/kernel names spec.md §6 fixes, e.g.
// "Merged" + role.Camel() + "Group" + index.
func (r Role) Camel() string {
	switch r {
	case NeuronUpdate:
		return "NeuronUpdate"
	case NeuronSpikeQueueUpdate:
		return "NeuronSpikeQueueUpdate"
	case NeuronInit:
		return "NeuronInit"
	case PresynapticUpdate:
		return "PresynapticUpdate"
	case PostsynapticUpdate:
		return "PostsynapticUpdate"
	case SynapseDynamics:
		return "SynapseDynamics"
	case SynapseDenseInit:
		return "SynapseDenseInit"
	case SynapseConnectivityInit:
		return "SynapseConnectivityInit"
	case SynapseSparseInit:
		return "SynapseSparseInit"
	case SynapseDendriticDelayUpdate:
		return "SynapseDendriticDelayUpdate"
	default:
		return "Unknown"
	}
}

func (r Role) String() string {
	switch r {
	case NeuronUpdate:
		return "neuron-update"
	case NeuronSpikeQueueUpdate:
		return "neuron-spike-queue-update"
	case NeuronInit:
		return "neuron-init"
	case PresynapticUpdate:
		return "presynaptic-update"
	case PostsynapticUpdate:
		return "postsynaptic-update"
	case SynapseDynamics:
		return "synapse-dynamics"
	case SynapseDenseInit:
		return "synapse-dense-init"
	case SynapseConnectivityInit:
		return "synapse-connectivity-init"
	case SynapseSparseInit:
		return "synapse-sparse-init"
	case SynapseDendriticDelayUpdate:
		return "synapse-dendritic-delay-update"
	default:
		return "unknown-role"
	}
}

// MergedGroup is a set of groups of type T that were judged structurally
// interchangeable for the purposes of Role: they will share one emitted
// kernel body, differing only in the per-instance field values baked into
// the merged struct internal/mergedstruct builds for them.
type MergedGroup[T any] struct {
	Index   int
	Role    Role
	Members []T
}

// Archetype is the representative member whose structure (equation set,
// capability flags, code blocks) stands in for the whole merged group when
// emitting the shared kernel body. It is always the first group folded
// into the group, per the original algorithm — the first group popped
// becomes the proto-merged group's sole member, and canMerge is always
// evaluated against that original front member, never against whichever
// member was added most recently.
func (m *MergedGroup[T]) Archetype() T {
	return m.Members[0]
}

// TotalPaddedSize sums paddedSize over every member of g — the total
// thread-id range the outer dispatch ladder (internal/dispatch) must
// reserve for this merged group, as opposed to just its archetype's
// share. Grounded on original_source's genGroupStartIDs, which sizes a
// merged group's kernel range by its full member list, not its
// archetype alone.
func TotalPaddedSize[T any](g *MergedGroup[T], paddedSize func(T) int) int {
	total := 0
	for _, m := range g.Members {
		total += paddedSize(m)
	}
	return total
}

// StartIDs returns the per-member thread-id offsets within g's reserved
// range: len(g.Members)+1 entries, StartIDs[i] is where member i's
// threads begin and StartIDs[len(Members)] is the merged group's total
// padded size (a sentinel upper bound, not a member's own start).
func StartIDs[T any](g *MergedGroup[T], paddedSize func(T) int) []int {
	ids := make([]int, len(g.Members)+1)
	for i, m := range g.Members {
		ids[i+1] = ids[i] + paddedSize(m)
	}
	return ids
}

// Merge partitions groups into MergedGroups under role, using canMerge(a,
// b) to decide whether b may join the merged group whose archetype is a.
// Merge works on a sorted copy of groups, consumed back-to-front; the
// caller's slice is left unchanged. name extracts the stable group
// name Merge sorts work by before consuming it: spec.md §4.3's tie-break,
// "sort input by stable group name before merging", applied unconditionally
// rather than only when the caller suspects its input order is unstable —
// ModelView happens to hand back groups in construction order already, but
// Merge shouldn't depend on that. The returned order is the order
// proto-merged groups were first created in, i.e. the order of the last
// elements of the sorted work slice to start a new group.
func Merge[T any](groups []T, role Role, name func(T) string, canMerge func(a, b T) bool) []*MergedGroup[T] {
	work := append([]T(nil), groups...)
	sort.SliceStable(work, func(i, j int) bool { return name(work[i]) < name(work[j]) })
	var proto [][]T
	for len(work) > 0 {
		n := len(work) - 1
		group := work[n]
		work = work[:n]

		found := false
		for i := range proto {
			if canMerge(proto[i][0], group) {
				proto[i] = append(proto[i], group)
				found = true
				break
			}
		}
		if !found {
			proto = append(proto, []T{group})
		}
	}

	merged := make([]*MergedGroup[T], len(proto))
	for i, members := range proto {
		merged[i] = &MergedGroup[T]{Index: i, Role: role, Members: members}
	}
	return merged
}
