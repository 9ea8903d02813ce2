// Package presyn implements the two presynaptic-update parallelism
// strategies spec.md §4.6 specifies — PreSpan (one thread per
// presynaptic-spike × row element, atomic accumulation) and PostSpan (one
// thread per postsynaptic neuron, register/shared/atomic accumulation
// depending on whether the postsynaptic model is merged) — plus the
// strategy registry that resolves which one applies to a given synapse
// group. Grounded directly on original_source's
// backend/opencl/backend.cc: Backend::s_PresynapticUpdateStrategies
// (registration order) and Backend::getPresynapticUpdateStrategy
// (reverse-scan resolution, first compatible strategy wins so
// later-registered strategies take priority), and on the presynaptic
// kernel body around shouldAccumulateInRegister/
// shouldAccumulateInSharedMemory for the accumulation-target code shape.
package presyn

import (
	"fmt"

	"snngen/internal/cgen"
	"snngen/internal/codestream"
	"snngen/internal/model"
	"snngen/internal/subst"
)

// CodeHandler emits one user-supplied code block (threshold-condition or
// weight-update sim/event code) for a synapse group into cs, using subs
// to resolve substitution tokens.
type CodeHandler func(cs *codestream.Stream, sg *model.SynapseGroup, subs *subst.Frame) error

// Strategy is the capability set spec.md §4.6 enumerates for a
// presynaptic-update parallelism strategy.
type Strategy interface {
	Name() string
	IsCompatible(sg *model.SynapseGroup) bool
	GetNumThreads(sg *model.SynapseGroup) int
	GetSynapticMatrixRowStride(sg *model.SynapseGroup) int
	ShouldAccumulateInRegister(sg *model.SynapseGroup) bool
	ShouldAccumulateInSharedMemory(sg *model.SynapseGroup) bool
	EmitCode(cs *codestream.Stream, sg *model.SynapseGroup, subs *subst.Frame, trueSpike bool, threshHandler, simHandler CodeHandler) error
	// AddToInSynTemplate returns the $(addtoinSyn, value) expansion
	// template this strategy binds into the per-synapse substitution
	// frame: the C expression/statement that actually deposits value
	// (spliced in for $(0)) into the postsynaptic input, evaluated once
	// per synapse visited inside EmitCode's loop body.
	AddToInSynTemplate(sg *model.SynapseGroup, precision string) string
}

// Registry holds presynaptic-update strategies in registration order.
// Resolve scans it in reverse, so a strategy registered later in the same
// process wins over an earlier built-in one with the same compatibility —
// "Prefer explicit registration over global-constructor side effects"
// (spec.md §9).
type Registry struct {
	strategies []Strategy
}

// NewRegistry returns a registry pre-populated with the built-in
// strategies in their canonical order: PreSpan first, then PostSpan, so
// that by default PostSpan is tried first on resolution.
func NewRegistry() *Registry {
	return &Registry{strategies: []Strategy{PreSpan{}, PostSpan{}}}
}

// Register appends a strategy, making it take priority over every
// previously-registered strategy during Resolve.
func (r *Registry) Register(s Strategy) {
	r.strategies = append(r.strategies, s)
}

// NoCompatibleStrategyError reports that no strategy in the registry
// accepted a synapse group.
type NoCompatibleStrategyError struct {
	GroupName string
}

func (e *NoCompatibleStrategyError) Error() string {
	return fmt.Sprintf("unable to find a suitable presynaptic update strategy for synapse group %q", e.GroupName)
}

// Resolve returns the highest-priority compatible strategy for sg.
func (r *Registry) Resolve(sg *model.SynapseGroup) (Strategy, error) {
	for i := len(r.strategies) - 1; i >= 0; i-- {
		if r.strategies[i].IsCompatible(sg) {
			return r.strategies[i], nil
		}
	}
	return nil, &NoCompatibleStrategyError{GroupName: sg.Name()}
}

// PreSpan parallelises over presynaptic spikes: each thread processes one
// row of the synaptic matrix for one spiking presynaptic neuron, and must
// accumulate into the postsynaptic input via an atomic, since many
// threads across many presynaptic spikes can target the same
// postsynaptic neuron concurrently.
type PreSpan struct{}

func (PreSpan) Name() string { return "PreSpan" }

// IsCompatible always holds: PreSpan is the fallback strategy usable for
// any synapse group regardless of its declared span type.
func (PreSpan) IsCompatible(sg *model.SynapseGroup) bool { return true }

func (PreSpan) GetNumThreads(sg *model.SynapseGroup) int { return sg.Src().NumNeurons() }

func (PreSpan) GetSynapticMatrixRowStride(sg *model.SynapseGroup) int { return sg.MaxRowLength() }

func (PreSpan) ShouldAccumulateInRegister(sg *model.SynapseGroup) bool { return false }

func (PreSpan) ShouldAccumulateInSharedMemory(sg *model.SynapseGroup) bool { return false }

func (PreSpan) EmitCode(cs *codestream.Stream, sg *model.SynapseGroup, subs *subst.Frame, trueSpike bool, threshHandler, simHandler CodeHandler) error {
	suffix := ""
	if !trueSpike {
		suffix = "Evnt"
	}
	id, err := subs.GetVarSubstitution("id")
	if err != nil {
		return err
	}
	cs.Line(fmt.Sprintf("if (%s < group->srcSpkCnt%s[preReadDelaySlot])", id, suffix))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int ipre = group->srcSpk%s[preReadDelayOffset + %s];", suffix, id))
	rowLength := "group->rowStride"
	if sg.MatrixType().Has(model.MatrixSparse) {
		rowLength = "group->rowLength[ipre]"
	}
	cs.Line(fmt.Sprintf("const unsigned int rowLength = %s;", rowLength))
	cs.Line("for (unsigned int k = 0; k < rowLength; k++)")
	cs.Open(3)
	cs.Line("const unsigned int synAddress = ipre * group->rowStride + k;")
	if threshHandler != nil {
		if err := threshHandler(cs, sg, subs); err != nil {
			return err
		}
	}
	if simHandler != nil {
		if err := simHandler(cs, sg, subs); err != nil {
			return err
		}
	}
	cs.MustClose(3)
	cs.MustClose(1)
	return nil
}

// AddToInSynTemplate always deposits via an atomic add into the global
// inSyn array, since many threads (one per presynaptic spike) can target
// the same postsynaptic neuron concurrently — spec.md §4.6 requires this
// unconditionally for PreSpan, regardless of whether the postsynaptic
// model happens to be merged.
func (PreSpan) AddToInSynTemplate(sg *model.SynapseGroup, precision string) string {
	ipost := "k"
	if sg.MatrixType().Has(model.MatrixSparse) || sg.MatrixType().Has(model.MatrixBitmask) {
		ipost = "group->ind[synAddress]"
	}
	target := EmitAccumulationTarget(cgen.Vb("group->inSyn["+ipost+"]"), cgen.Vb("$(0)"), true, precision)
	return string(target.Append(nil))
}

// PostSpan parallelises over postsynaptic neurons: each thread owns one
// target neuron and iterates over incoming spikes staged cooperatively in
// shared memory, accumulating into a register when the postsynaptic
// model is not merged (no other merged-group member shares the target
// array), or into shared memory, or via atomic as a last resort.
type PostSpan struct{}

func (PostSpan) Name() string { return "PostSpan" }

func (PostSpan) IsCompatible(sg *model.SynapseGroup) bool {
	return sg.SpanType() == model.SpanPostsynaptic
}

func (PostSpan) GetNumThreads(sg *model.SynapseGroup) int { return sg.Trg().NumNeurons() }

func (PostSpan) GetSynapticMatrixRowStride(sg *model.SynapseGroup) int { return sg.MaxRowLength() }

func (PostSpan) ShouldAccumulateInRegister(sg *model.SynapseGroup) bool {
	return !sg.IsPSMMerged()
}

func (PostSpan) ShouldAccumulateInSharedMemory(sg *model.SynapseGroup) bool {
	return sg.IsPSMMerged()
}

func (p PostSpan) EmitCode(cs *codestream.Stream, sg *model.SynapseGroup, subs *subst.Frame, trueSpike bool, threshHandler, simHandler CodeHandler) error {
	suffix := ""
	if !trueSpike {
		suffix = "Evnt"
	}
	cs.Line(fmt.Sprintf("for (unsigned int r = 0; r < numSpikeSubBlocks%s; r++)", suffix))
	cs.Open(1)
	cs.Line("barrier(CLK_LOCAL_MEM_FENCE);")
	cs.Line(fmt.Sprintf("if (id < group->rowStride) shRowLength[localId] = group->rowLength[shSpk%s[r]];", suffix))
	cs.Line("barrier(CLK_LOCAL_MEM_FENCE);")
	cs.Line("for (unsigned int j = 0; j < shRowLength[r]; j++)")
	cs.Open(2)
	cs.Line("const unsigned int synAddress = shSpk[r] * group->rowStride + j;")
	if threshHandler != nil {
		if err := threshHandler(cs, sg, subs); err != nil {
			return err
		}
	}
	if simHandler != nil {
		if err := simHandler(cs, sg, subs); err != nil {
			return err
		}
	}
	cs.MustClose(2)
	cs.MustClose(1)
	return nil
}

// AddToInSynTemplate accumulates locally, into whichever of the register
// or shared-memory slot this group's thread owns; the slot is flushed into
// the global inSyn array once, after the spike loop, by
// emitPresynapticUpdateBody's final accumulation step.
func (PostSpan) AddToInSynTemplate(sg *model.SynapseGroup, precision string) string {
	if sg.IsPSMMerged() {
		return "shLg[localId] += $(0)"
	}
	return "linSyn += $(0)"
}

// EmitAccumulationTarget emits the float-atomic-add helper call or a
// plain "+=" depending on whether the postsynaptic model is merged
// (merged PSM targets are shared by more than one synapse group, so two
// merged groups' threads can race on the same inSyn slot).
func EmitAccumulationTarget(inSynExpr cgen.Gen, valueExpr cgen.Gen, psmMerged bool, precision string) cgen.Gen {
	if psmMerged {
		return cgen.Call{
			Func: cgen.Vb(atomicAddHelperName(precision)),
			Args: cgen.CommaSpaced{cgen.Addr{Expr: inSynExpr}, valueExpr},
		}
	}
	return cgen.AddAssign{Expr1: inSynExpr, Expr2: valueExpr}
}

func atomicAddHelperName(precision string) string {
	if precision == "float" {
		return "atomicAddFloat"
	}
	return "atomicAddDouble"
}
