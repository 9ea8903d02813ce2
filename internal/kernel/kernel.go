// Package kernel is the top-level orchestrator for the three emitted
// kernel programs (init, neuron-update, synapse-update) — spec.md §4.7.
// It is grounded on two teacher/pack shapes at once: the state-machine
// orchestration style of the teacher's compile/author.go (a fixed
// sequence of named stages, each doing one self-contained pass over the
// model and writing into a shared CodeStream), and the actual kernel
// bodies of original_source's generateNeuronUpdate.cc and
// backends/opencl/backend.cc, whose exact sequencing of state-var
// loading, Isyn accumulation, dendritic-delay draining, current-source
// injection, spike testing, spike emission, and post-synaptic decay this
// package reproduces op-for-op. Where the original interleaves "os <<
// literal text" with substitution-applied code, this package does the
// same via codestream.Stream.Line — the teacher's cgen AST builders are
// reserved for the structural pieces (struct types, function signatures)
// that benefit from composition, matching how thin a line of emitted
// C really is most of the time.
package kernel

import (
	"fmt"

	"snngen/internal/cgen"
	"snngen/internal/codestream"
	"snngen/internal/config"
	"snngen/internal/dispatch"
	"snngen/internal/errmsg"
	"snngen/internal/merge"
	"snngen/internal/mergedstruct"
	"snngen/internal/model"
	"snngen/internal/presyn"
	"snngen/internal/subst"
)

// Emitter is the top-level orchestrator. One Emitter is built per
// generation run and discarded after; it holds no state that outlives a
// single (device text, host text) pair.
type Emitter struct {
	Config   *config.Config
	Registry *presyn.Registry
}

func New(cfg *config.Config) *Emitter {
	return &Emitter{Config: cfg, Registry: presyn.NewRegistry()}
}

func (e *Emitter) scalarType() string { return e.Config.ScalarPrecision.CType() }
func (e *Emitter) timeType() string   { return e.Config.TimePrecision.CType() }

func (e *Emitter) atomicAddHelperName() string {
	if e.scalarType() == "float" {
		return "atomicAddFloat"
	}
	return "atomicAddDouble"
}

func (e *Emitter) dialectKeywords() (globalFn, localKw, barrier, syncFence string) {
	if e.Config.Dialect == config.OpenCL {
		return "get_global_id(0)", "__local", "barrier", "CLK_LOCAL_MEM_FENCE"
	}
	return "blockIdx.x * blockDim.x + threadIdx.x", "__shared__", "__syncthreads", ""
}

// EmitPreamble writes the scalar typedef, fixed-width integer aliases,
// and the float/double atomic-add helpers every kernel program needs —
// spec.md §4.7 step 1.
func (e *Emitter) EmitPreamble(cs *codestream.Stream) {
	cs.Line(fmt.Sprintf("typedef %s scalar;", e.scalarType()))
	cs.Line("typedef unsigned int uint32_t;")
	cs.Line(fmt.Sprintf("typedef %s timepoint;", e.timeType()))
	cs.Line("")
	if e.Config.Dialect == config.CUDA {
		cs.Line("__device__ inline float atomicAddFloat(float *address, float val)")
		cs.Open(1)
		cs.Line("return atomicAdd(address, val);")
		cs.MustClose(1)
		cs.Line("__device__ inline double atomicAddDouble(double *address, double val)")
		cs.Open(1)
		cs.Line("unsigned long long int *addressAsULL = (unsigned long long int *)address;")
		cs.Line("unsigned long long int old = *addressAsULL, assumed;")
		cs.Line("do")
		cs.Open(2)
		cs.Line("assumed = old;")
		cs.Line("old = atomicCAS(addressAsULL, assumed, __double_as_longlong(val + __longlong_as_double(assumed)));")
		cs.MustClose(2)
		cs.Line("while (assumed != old);")
		cs.Line("return __longlong_as_double(old);")
		cs.MustClose(1)
	} else {
		cs.Line("inline float atomicAddFloat(volatile __global float *address, float val)")
		cs.Open(1)
		cs.Line("union { unsigned int u; float f; } old, curr;")
		cs.Line("curr.f = *address;")
		cs.Line("do { old.f = curr.f; curr.u = atomic_cmpxchg((volatile __global unsigned int *)address, old.u, as_uint(old.f + val)); } while (old.u != curr.u);")
		cs.Line("return curr.f;")
		cs.MustClose(1)
		cs.Line("#pragma OPENCL EXTENSION cl_khr_int64_base_atomics : enable")
		cs.Line("inline double atomicAddDouble(volatile __global double *address, double val)")
		cs.Open(1)
		cs.Line("union { unsigned long u; double f; } old, curr;")
		cs.Line("curr.f = *address;")
		cs.Line("do { old.f = curr.f; curr.u = atom_cmpxchg((volatile __global unsigned long *)address, old.u, as_ulong(old.f + val)); } while (old.u != curr.u);")
		cs.Line("return curr.f;")
		cs.MustClose(1)
	}
	cs.Line("")
}

// supportCodeKey identifies one distinct user support-code block, so
// EmitSupportCodeNamespaces can dedupe and give each a stable namespace
// name, per spec.md §4.7 step 2.
type supportCodeKey struct {
	groupName string
	code      string
}

// EmitSupportCodeNamespaces emits one C++ namespace per distinct,
// non-empty support-code string across groups, named "<groupName>_<tag>"
// (e.g. "Pop0_neuron", "Syn0_postsyn"), deduplicated on identical support
// code text so two groups sharing a model kind only get one namespace.
func EmitSupportCodeNamespaces(cs *codestream.Stream, tag string, entries []supportCodeKey) map[string]string {
	seen := make(map[string]string, len(entries))
	nsOf := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.code == "" {
			continue
		}
		if ns, ok := seen[entry.code]; ok {
			nsOf[entry.groupName] = ns
			continue
		}
		ns := entry.groupName + "_" + tag
		seen[entry.code] = ns
		nsOf[entry.groupName] = ns
		cs.Line(fmt.Sprintf("namespace %s", ns))
		cs.Open(1)
		cs.WriteString(entry.code)
		cs.Line("")
		cs.MustClose(1)
	}
	return nsOf
}

// EmitMergedStructDefs emits, per merged group in groups: the struct
// type, the device array declaration, and the per-member start-id
// constant array — spec.md §4.7 step 3, plus SPEC_FULL.md's two-layer
// dispatch supplement (the original's genGroupStartIDs split between a
// merged-group-level ladder and a per-member start-id array a kernel
// body scans at runtime to resolve which member owns a given thread).
func EmitMergedStructDefs[T any](cs *codestream.Stream, role merge.Role, groups []*merge.MergedGroup[T], memberSize func(T) int, fields func(T) []mergedstruct.Field[T]) {
	for _, g := range groups {
		cs.WriteString(string(mergedstruct.EmitStruct(role, g.Index, mergedstruct.DeriveFields(g.Members, fields(g.Archetype()))).Append(nil)))
		cs.Line(fmt.Sprintf("%s %s[%d];", mergedstruct.StructName(role, g.Index), mergedstruct.ArrayName(role, g.Index), len(g.Members)))
		cs.Line(string(mergedstruct.EmitStartIDArray(role, g.Index, merge.StartIDs(g, memberSize)).Append(nil)))
	}
}

// dispatchMembers runs the merged-group ladder (internal/dispatch, one
// guarded range per merged group spanning the sum of all its members'
// padded sizes) and, inside each merged group's range, resolves which
// member owns the current thread by scanning that group's emitted
// start-id array before handing off to body. memberSize must be the same
// function EmitMergedStructDefs was given for role, so the start-id
// array referenced here matches the one actually emitted.
func dispatchMembers[T any](cs *codestream.Stream, kernelSubs *subst.Frame, idStart *int, role merge.Role, groups []*merge.MergedGroup[T], memberSize func(T) int, name func(*merge.MergedGroup[T]) string, body func(cs *codestream.Stream, g *merge.MergedGroup[T], memberIdx, gid string, popSubs *subst.Frame) error) error {
	return dispatch.Dispatch(cs, kernelSubs, idStart, groups,
		func(g *merge.MergedGroup[T]) int { return merge.TotalPaddedSize(g, memberSize) },
		name,
		func(cs *codestream.Stream, g *merge.MergedGroup[T], popSubs *subst.Frame) error {
			lid, err := popSubs.GetVarSubstitution("id")
			if err != nil {
				return err
			}
			startIDArray := mergedstruct.StartIDArrayName(role, g.Index)
			cs.Line("unsigned int memberIdx = 0;")
			cs.Line(fmt.Sprintf("while (memberIdx < %d && %s >= %s[memberIdx + 1]) memberIdx++;", len(g.Members)-1, lid, startIDArray))
			cs.Line(fmt.Sprintf("const unsigned int gid = %s - %s[memberIdx];", lid, startIDArray))
			memberSubs := subst.NewFrame(popSubs)
			if err := memberSubs.AddVarSubstitution("id", "gid", false); err != nil {
				return err
			}
			return body(cs, g, "memberIdx", "gid", memberSubs)
		})
}

// spikeEmissionSuffix returns "" for true spikes, "Evnt" for spike-like
// events, per spec.md §4.7's spike emission protocol.
func spikeEmissionSuffix(trueSpike bool) string {
	if trueSpike {
		return ""
	}
	return "Evnt"
}

// EmitSpikeEmission emits the shared true-spike/spike-like-event
// protocol: reserve a shared-memory slot, stage the id, barrier, a
// designated thread reserves a range in the global buffer, barrier,
// threads write their staged spike back — spec.md §4.7's "Spike emission
// protocol", grounded on original_source's genEmitSpike shape (called
// from CUDA::CodeGenerator::genEmitTrueSpike/genEmitSpikeLikeEvent).
// designatedLocalID is 0 for true spikes and 1 for events, per spec.
func (e *Emitter) EmitSpikeEmission(cs *codestream.Stream, ng *model.NeuronGroup, popSubs *subst.Frame, trueSpike bool) error {
	suffix := spikeEmissionSuffix(trueSpike)
	designatedLocalID := 0
	if !trueSpike {
		designatedLocalID = 1
	}

	id, err := popSubs.GetVarSubstitution("id")
	if err != nil {
		return err
	}

	cs.Line(fmt.Sprintf("const unsigned int spkIdx = atomicAdd(&shSpk%sCount, 1);", suffix))
	cs.Line(fmt.Sprintf("shSpk%s[spkIdx] = %s;", suffix, id))
	cs.Line(e.syncthreadsCall())
	cs.Line(fmt.Sprintf("if (localId == %d)", designatedLocalID))
	cs.Open(1)
	cs.Line(fmt.Sprintf("shPosSpk%s = atomicAdd(&group->spkCnt%s[%s], shSpk%sCount);", suffix, suffix, e.spikeQueueIndexExpr(ng), suffix))
	cs.MustClose(1)
	cs.Line(e.syncthreadsCall())
	cs.Line(fmt.Sprintf("if (localId < shSpk%sCount)", suffix))
	cs.Open(2)
	cs.Line(fmt.Sprintf("const unsigned int n = shPosSpk%s + localId;", suffix))
	cs.Line(fmt.Sprintf("group->spk%s[n] = shSpk%s[localId];", suffix, suffix))
	if trueSpike && ng.IsSpikeTimeRequired() {
		cs.Line("group->sT[group->spk" + suffix + "[n]] = t;")
	}
	cs.MustClose(2)
	return nil
}

func (e *Emitter) syncthreadsCall() string {
	if e.Config.Dialect == config.OpenCL {
		return "barrier(CLK_LOCAL_MEM_FENCE);"
	}
	return "__syncthreads();"
}

func (e *Emitter) spikeQueueIndexExpr(ng *model.NeuronGroup) string {
	if ng.IsDelayRequired() {
		return "*group->spkQuePtr"
	}
	return "0"
}

// EmitPreNeuronResetKernel emits preNeuronResetKernel: cycles each merged
// group's delay-slot pointer and zeroes its spike counters, one thread
// per member — spec.md §4.7 step 4 "pre-neuron-reset".
func (e *Emitter) EmitPreNeuronResetKernel(cs *codestream.Stream, groups []*merge.MergedGroup[*model.NeuronGroup]) error {
	if len(groups) == 0 {
		return nil
	}
	role := merge.NeuronSpikeQueueUpdate
	cs.Line(e.kernelSignature("preNeuronResetKernel", role, nil))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
	kernelSubs := subst.NewFrame(nil)
	idStart := 0
	err := dispatch.Dispatch(cs, kernelSubs, &idStart, groups,
		func(g *merge.MergedGroup[*model.NeuronGroup]) int { return e.Config.PadSize(role, len(g.Members)) },
		func(g *merge.MergedGroup[*model.NeuronGroup]) string { return fmt.Sprintf("MergedNeuronSpikeQueueUpdateGroup%d", g.Index) },
		func(cs *codestream.Stream, g *merge.MergedGroup[*model.NeuronGroup], popSubs *subst.Frame) error {
			localID, err := popSubs.GetVarSubstitution("id")
			if err != nil {
				return err
			}
			cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(role, g.Index), mergedstruct.ArrayName(role, g.Index), localID))
			if g.Archetype().IsDelayRequired() {
				cs.Line(fmt.Sprintf("*group->spkQuePtr = (*group->spkQuePtr + 1) %% %d;", g.Archetype().DelaySlots()))
			}
			cs.Line(fmt.Sprintf("group->spkCnt[%s] = 0;", e.spikeQueueIndexExpr(g.Archetype())))
			if g.Archetype().IsSpikeEventRequired() {
				cs.Line(fmt.Sprintf("group->spkCntEvnt[%s] = 0;", e.spikeQueueIndexExpr(g.Archetype())))
			}
			return nil
		})
	if err != nil {
		return err
	}
	cs.MustClose(1)
	return nil
}

func (e *Emitter) globalIDExpr() string {
	fn, _, _, _ := e.dialectKeywords()
	return fn
}

func (e *Emitter) kernelSignature(name string, role merge.Role, extraParams []cgen.Gen) string {
	qualifier := "__global__"
	if e.Config.Dialect == config.OpenCL {
		qualifier = "__kernel"
	}
	params := cgen.CommaSpaced{}
	for _, p := range extraParams {
		params = append(params, p)
	}
	return string(cgen.FuncDef{
		Qualifier:  cgen.Vb(qualifier),
		ReturnType: cgen.Void,
		Name:       name,
		Params:     params,
		Body:       nil,
	}.Append(nil))
}

// EmitNeuronUpdateKernel emits updateNeuronsKernel: per-thread state-var
// loading from the read-delay slot, Isyn accumulation from merged inputs
// (draining dendritic-delay buffers where required), current-source
// injection, threshold/event testing, spike emission via
// EmitSpikeEmission, reset code, and state-var + postsynaptic-decay
// store-back — spec.md §4.7 step 4 "neuron-update", grounded op-for-op on
// original_source's generateNeuronUpdate.cc.
func (e *Emitter) EmitNeuronUpdateKernel(cs *codestream.Stream, groups []*merge.MergedGroup[*model.NeuronGroup], t string) error {
	if len(groups) == 0 {
		return nil
	}
	role := merge.NeuronUpdate

	var neuronEntries, postsynEntries []supportCodeKey
	for _, g := range groups {
		ng := g.Archetype()
		neuronEntries = append(neuronEntries, supportCodeKey{groupName: ng.Name(), code: ng.Model().Code.Support})
		for _, sg := range ng.MergedInSyn() {
			if psm := sg.PSM(); psm != nil {
				postsynEntries = append(postsynEntries, supportCodeKey{groupName: sg.PSModelTargetName(), code: psm.Support})
			}
		}
	}
	neuronNS := EmitSupportCodeNamespaces(cs, "neuron", neuronEntries)
	postsynNS := EmitSupportCodeNamespaces(cs, "postsyn", postsynEntries)

	cs.Line(e.kernelSignature("updateNeuronsKernel", role, []cgen.Gen{cgen.Param{Type: cgen.Vb(e.timeType()), What: cgen.Vb("t")}}))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
	if e.Config.Dialect == config.OpenCL {
		cs.Line("const unsigned int localId = get_local_id(0);")
	} else {
		cs.Line("const unsigned int localId = threadIdx.x;")
	}
	e.emitSpikeStagingDecls(cs, groups, true)
	e.emitSpikeStagingDecls(cs, groups, false)

	kernelSubs := subst.NewFrame(nil)
	kernelSubs.AddVarSubstitution("t", t, false)
	idStart := 0
	memberSize := func(ng *model.NeuronGroup) int { return e.Config.PadSize(role, ng.NumNeurons()) }

	err := dispatchMembers(cs, kernelSubs, &idStart, role, groups, memberSize,
		func(g *merge.MergedGroup[*model.NeuronGroup]) string { return fmt.Sprintf("MergedNeuronUpdateGroup%d", g.Index) },
		func(cs *codestream.Stream, g *merge.MergedGroup[*model.NeuronGroup], memberIdx, gid string, popSubs *subst.Frame) error {
			return e.emitNeuronUpdateBody(cs, g, memberIdx, gid, popSubs, neuronNS, postsynNS)
		})
	if err != nil {
		return err
	}
	cs.MustClose(1)
	return nil
}

func (e *Emitter) emitSpikeStagingDecls(cs *codestream.Stream, groups []*merge.MergedGroup[*model.NeuronGroup], trueSpike bool) {
	want := false
	for _, g := range groups {
		if trueSpike && g.Archetype().IsTrueSpikeRequired() {
			want = true
		}
		if !trueSpike && g.Archetype().IsSpikeEventRequired() {
			want = true
		}
	}
	if !want {
		return
	}
	suffix := spikeEmissionSuffix(trueSpike)
	localKw := "__shared__"
	if e.Config.Dialect == config.OpenCL {
		localKw = "__local"
	}
	size := e.Config.WorkgroupSize(merge.NeuronUpdate)
	cs.Line(fmt.Sprintf("%s unsigned int shSpk%s[%d];", localKw, suffix, size))
	cs.Line(fmt.Sprintf("%s volatile unsigned int shSpk%sCount;", localKw, suffix))
	cs.Line(fmt.Sprintf("%s volatile unsigned int shPosSpk%s;", localKw, suffix))
	cs.Line("if (localId == 0)")
	cs.Open(1)
	cs.Line(fmt.Sprintf("shSpk%sCount = 0;", suffix))
	cs.MustClose(1)
	cs.Line(e.syncthreadsCall())
}

func (e *Emitter) emitNeuronUpdateBody(cs *codestream.Stream, g *merge.MergedGroup[*model.NeuronGroup], memberIdx, id string, popSubs *subst.Frame, neuronNS, postsynNS map[string]string) error {
	ng := g.Archetype()
	nm := ng.Model()
	cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(merge.NeuronUpdate, g.Index), mergedstruct.ArrayName(merge.NeuronUpdate, g.Index), memberIdx))
	if ns, ok := neuronNS[ng.Name()]; ok {
		cs.Line(fmt.Sprintf("using namespace %s;", ns))
	}

	readOffset := ""
	writeOffset := ""
	if ng.IsDelayRequired() {
		cs.Line(fmt.Sprintf("const unsigned int readDelayOffset = (*group->spkQuePtr) * group->numNeurons;"))
		cs.Line(fmt.Sprintf("const unsigned int writeDelayOffset = ((*group->spkQuePtr + 1) %% %d) * group->numNeurons;", ng.DelaySlots()))
		readOffset, writeOffset = "readDelayOffset + ", "writeDelayOffset + "
	}

	for _, v := range nm.Vars {
		cs.Line(fmt.Sprintf("%s l%s = group->%s[%s%s];", v.Type, v.Name, v.Name, readOffset, id))
		if err := popSubs.AddVarSubstitution(v.Name, "l"+v.Name, false); err != nil {
			return err
		}
	}
	if ng.IsSpikeTimeRequired() {
		cs.Line(fmt.Sprintf("%s lsT = group->sT[%s%s];", e.timeType(), readOffset, id))
	}
	cs.Line("")

	needsIsyn := len(ng.MergedInSyn()) > 0
	if needsIsyn {
		cs.Line(fmt.Sprintf("%s Isyn = 0;", e.scalarType()))
	}
	if err := popSubs.AddVarSubstitution("Isyn", "Isyn", true); err != nil {
		return err
	}
	if err := popSubs.AddVarSubstitution("sT", "lsT", true); err != nil {
		return err
	}

	for _, in := range ng.MergedInSyn() {
		if err := e.emitMergedInSynInput(cs, in, id, postsynNS); err != nil {
			return err
		}
	}
	for _, src := range ng.CurrentSources() {
		e.emitCurrentSourceInjection(cs, src, id)
	}

	spikeEventCode := nm.Code.Event
	if ng.IsSpikeEventRequired() && spikeEventCode != "" {
		cs.Line("bool spikeLikeEvent = false;")
		spikeEventFrame := subst.NewFrame(popSubs)
		spikeEventFrame.AddVarSubstitution("id", id, true)
		applied := spikeEventFrame.Apply(spikeEventCode)
		if err := subst.CheckUnreplacedVariables(applied, ng.Name(), "neuronSpkEvntCondition"); err != nil {
			return err
		}
		cs.Line(fmt.Sprintf("spikeLikeEvent |= (%s);", applied))
		cs.Line("if (spikeLikeEvent)")
		cs.Open(1)
		if err := e.EmitSpikeEmission(cs, ng, popSubs, false); err != nil {
			return err
		}
		cs.MustClose(1)
	}

	thCode := nm.Code.Threshold
	if thCode != "" {
		thApplied := popSubs.Apply(thCode)
		if err := subst.CheckUnreplacedVariables(thApplied, ng.Name(), "thresholdConditionCode"); err != nil {
			return err
		}
		cs.Line(fmt.Sprintf("if (%s)", thApplied))
		cs.Open(2)
		if err := e.EmitSpikeEmission(cs, ng, popSubs, true); err != nil {
			return err
		}
		if nm.Code.Reset != "" {
			rApplied := popSubs.Apply(nm.Code.Reset)
			if err := subst.CheckUnreplacedVariables(rApplied, ng.Name(), "resetCode"); err != nil {
				return err
			}
			cs.Line(rApplied)
		}
		cs.MustClose(2)
	}

	simApplied := popSubs.Apply(nm.Code.Sim)
	if err := subst.CheckUnreplacedVariables(simApplied, ng.Name(), "neuron simCode"); err != nil {
		return err
	}
	cs.Line(simApplied)

	for _, v := range nm.Vars {
		cs.Line(fmt.Sprintf("group->%s[%s%s] = l%s;", v.Name, writeOffset, id, v.Name))
	}
	for _, in := range ng.MergedInSyn() {
		e.emitMergedInSynDecay(cs, in, id)
	}
	return nil
}

func (e *Emitter) emitMergedInSynInput(cs *codestream.Stream, sg *model.SynapseGroup, id string, postsynNS map[string]string) error {
	target := sg.PSModelTargetName()
	cs.Line("// pull inSyn values in a coalesced access")
	cs.Line(fmt.Sprintf("%s linSyn%s = group->inSyn%s[%s];", e.scalarType(), target, target, id))
	if sg.IsDendriticDelayRequired() {
		cs.Line(fmt.Sprintf("%s &denDelayFront%s = group->denDelay%s[(*group->denDelayPtr%s) * group->numNeurons + %s];", e.scalarType(), target, target, target, id))
		cs.Line(fmt.Sprintf("linSyn%s += denDelayFront%s;", target, target))
		cs.Line(fmt.Sprintf("denDelayFront%s = 0;", target))
	}
	psm := sg.PSM()
	if psm != nil && psm.ApplyInputCode != "" {
		inSynSubs := subst.NewFrame(nil)
		inSynSubs.AddVarSubstitution("inSyn", "linSyn"+target, false)
		inSynSubs.AddVarSubstitution("Isyn", "Isyn", false)
		inSynSubs.AddVarSubstitution("id", id, false)
		code := inSynSubs.Apply(psm.ApplyInputCode)
		if err := subst.CheckUnreplacedVariables(code, target, "postSynToCurrent"); err != nil {
			return err
		}
		ns, hasNS := postsynNS[target]
		if hasNS {
			cs.Line(fmt.Sprintf("{ using namespace %s;", ns))
		}
		cs.Line(code)
		if hasNS {
			cs.Line("} // namespace bracket closed")
		}
	}
	return nil
}

func (e *Emitter) emitMergedInSynDecay(cs *codestream.Stream, sg *model.SynapseGroup, id string) {
	target := sg.PSModelTargetName()
	psm := sg.PSM()
	cs.Line("// the post-synaptic dynamics")
	cs.Line(fmt.Sprintf("group->inSyn%s[%s] = linSyn%s;", target, id, target))
	_ = psm
}

func (e *Emitter) emitCurrentSourceInjection(cs *codestream.Stream, src *model.CurrentSource, id string) {
	cs.Line(fmt.Sprintf("// current source %s", src.Name))
	cs.Open(1)
	for _, v := range src.Model.Vars {
		cs.Line(fmt.Sprintf("%s lcs%s = group->%s%s[%s];", v.Type, v.Name, v.Name, src.Name, id))
	}
	currSubs := subst.NewFrame(nil)
	currSubs.AddFuncSubstitution("injectCurrent", 1, "Isyn += $(0)", false)
	code := currSubs.Apply(src.Model.InjectionCode)
	cs.Line(code)
	for _, v := range src.Model.Vars {
		cs.Line(fmt.Sprintf("group->%s%s[%s] = lcs%s;", v.Name, src.Name, id, v.Name))
	}
	cs.MustClose(1)
}

// EmitSynapseUpdateKernel emits updatePresynapticKernel and
// updatePostsynapticKernel (learn-post) — spec.md §4.7 step 4
// "synapse-update". It never emits updateSynapseDynamicsKernel: if any
// merged group has non-empty synapse-dynamics code, it returns a
// NotYetImplementedError after emitting the other two kernels, per
// spec.md §9's open question: the
// reference implementation ties the dynamics dispatch to state this core
// does not yet thread through (a second, independent padded-thread-count
// function over "row elements" rather than neurons).
func (e *Emitter) EmitSynapseUpdateKernel(cs *codestream.Stream, presynaptic []*merge.MergedGroup[*model.SynapseGroup], t string) error {
	if len(presynaptic) == 0 {
		return nil
	}
	role := merge.PresynapticUpdate
	cs.Line(e.kernelSignature("updatePresynapticKernel", role, []cgen.Gen{cgen.Param{Type: cgen.Vb(e.timeType()), What: cgen.Vb("t")}}))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
	if e.Config.Dialect == config.OpenCL {
		cs.Line("const unsigned int localId = get_local_id(0);")
	} else {
		cs.Line("const unsigned int localId = threadIdx.x;")
	}

	needShLg := false
	for _, g := range presynaptic {
		strategy, err := e.Registry.Resolve(g.Archetype())
		if err != nil {
			return err
		}
		if strategy.ShouldAccumulateInSharedMemory(g.Archetype()) {
			needShLg = true
		}
	}
	localKw := "__shared__"
	if e.Config.Dialect == config.OpenCL {
		localKw = "__local"
	}
	if needShLg {
		cs.Line(fmt.Sprintf("%s %s shLg[%d];", localKw, e.scalarType(), e.Config.WorkgroupSize(role)))
	}

	kernelSubs := subst.NewFrame(nil)
	kernelSubs.AddVarSubstitution("t", t, false)
	idStart := 0
	memberSize := func(sg *model.SynapseGroup) int {
		strategy, _ := e.Registry.Resolve(sg)
		return e.Config.PadSize(role, strategy.GetNumThreads(sg))
	}
	err := dispatchMembers(cs, kernelSubs, &idStart, role, presynaptic, memberSize,
		func(g *merge.MergedGroup[*model.SynapseGroup]) string { return fmt.Sprintf("MergedPresynapticUpdateGroup%d", g.Index) },
		func(cs *codestream.Stream, g *merge.MergedGroup[*model.SynapseGroup], memberIdx, gid string, popSubs *subst.Frame) error {
			return e.emitPresynapticUpdateBody(cs, g, memberIdx, gid, popSubs)
		})
	if err != nil {
		return err
	}
	cs.MustClose(1)

	if err := e.emitPostsynapticUpdateKernel(cs, presynaptic, t); err != nil {
		return err
	}

	for _, g := range presynaptic {
		if g.Archetype().WU().Code.SynapseDynamics != "" {
			return &errmsg.NotYetImplementedError{What: "synapse-dynamics kernel thread accounting"}
		}
	}
	return nil
}

func (e *Emitter) emitPresynapticUpdateBody(cs *codestream.Stream, g *merge.MergedGroup[*model.SynapseGroup], memberIdx, id string, popSubs *subst.Frame) error {
	sg := g.Archetype()
	strategy, err := e.Registry.Resolve(sg)
	if err != nil {
		return err
	}
	cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(merge.PresynapticUpdate, g.Index), mergedstruct.ArrayName(merge.PresynapticUpdate, g.Index), memberIdx))

	if sg.Src().IsDelayRequired() {
		cs.Line("const unsigned int preReadDelaySlot = *group->preSpkQuePtr;")
		cs.Line("const unsigned int preReadDelayOffset = preReadDelaySlot * group->numSrcNeurons;")
	} else {
		cs.Line("const unsigned int preReadDelaySlot = 0;")
		cs.Line("const unsigned int preReadDelayOffset = 0;")
	}
	if sg.Trg().IsDelayRequired() {
		cs.Line("const unsigned int postReadDelayOffset = (*group->postSpkQuePtr) * group->numTrgNeurons;")
	}

	if strategy.ShouldAccumulateInRegister(sg) {
		cs.Line(fmt.Sprintf("%s linSyn = 0;", e.scalarType()))
	} else if strategy.ShouldAccumulateInSharedMemory(sg) {
		cs.Line("if (localId < group->numTrgNeurons)")
		cs.Open(1)
		cs.Line("shLg[localId] = 0;")
		cs.MustClose(1)
		cs.Line(e.syncthreadsCall())
	}

	for _, v := range sg.WU().Vars {
		if err := popSubs.AddVarSubstitution(v.Name, fmt.Sprintf("group->%s[synAddress]", v.Name), false); err != nil {
			return err
		}
	}
	if err := popSubs.AddFuncSubstitution("addtoinSyn", 1, strategy.AddToInSynTemplate(sg, e.scalarType()), false); err != nil {
		return err
	}

	wuCode := func(cs *codestream.Stream, _ *model.SynapseGroup, subs *subst.Frame) error {
		if sg.WU().Code.Sim == "" {
			return nil
		}
		applied := subs.Apply(sg.WU().Code.Sim)
		if err := subst.CheckUnreplacedVariables(applied, sg.Name(), "weightUpdateSimCode"); err != nil {
			return err
		}
		cs.Line(applied)
		return nil
	}
	thCode := func(cs *codestream.Stream, _ *model.SynapseGroup, subs *subst.Frame) error {
		if sg.WU().Code.Threshold == "" {
			return nil
		}
		applied := subs.Apply(sg.WU().Code.Threshold)
		if err := subst.CheckUnreplacedVariables(applied, sg.Name(), "weightUpdateThresholdCode"); err != nil {
			return err
		}
		cs.Line(applied)
		return nil
	}
	if sg.IsSpikeEventRequired() {
		if err := strategy.EmitCode(cs, sg, popSubs, false, thCode, wuCode); err != nil {
			return err
		}
	}
	if sg.IsTrueSpikeRequired() {
		if err := strategy.EmitCode(cs, sg, popSubs, true, thCode, wuCode); err != nil {
			return err
		}
	}

	inSyn := presyn.EmitAccumulationTarget(cgen.Vb(fmt.Sprintf("group->inSyn[%s]", id)), cgen.Vb("linSyn"), sg.IsPSMMerged(), e.scalarType())
	if strategy.ShouldAccumulateInRegister(sg) {
		cs.Line(fmt.Sprintf("if (%s < group->numTrgNeurons)", id))
		cs.Open(1)
		cs.Line(string(inSyn.Append(nil)) + ";")
		cs.MustClose(1)
	} else if strategy.ShouldAccumulateInSharedMemory(sg) {
		cs.Line(e.syncthreadsCall())
		cs.Line("if (localId < group->numTrgNeurons)")
		cs.Open(1)
		cs.Line(string(presyn.EmitAccumulationTarget(cgen.Vb("group->inSyn[localId]"), cgen.Vb("shLg[localId]"), sg.IsPSMMerged(), e.scalarType()).Append(nil)) + ";")
		cs.MustClose(1)
	}
	return nil
}

func (e *Emitter) emitPostsynapticUpdateKernel(cs *codestream.Stream, groups []*merge.MergedGroup[*model.SynapseGroup], t string) error {
	var learnPost []*merge.MergedGroup[*model.SynapseGroup]
	for _, g := range groups {
		if g.Archetype().WU().Code.LearnPost != "" {
			learnPost = append(learnPost, g)
		}
	}
	if len(learnPost) == 0 {
		return nil
	}
	role := merge.PostsynapticUpdate
	cs.Line(e.kernelSignature("updatePostsynapticKernel", role, []cgen.Gen{cgen.Param{Type: cgen.Vb(e.timeType()), What: cgen.Vb("t")}}))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
	kernelSubs := subst.NewFrame(nil)
	kernelSubs.AddVarSubstitution("t", t, false)
	idStart := 0
	memberSize := func(sg *model.SynapseGroup) int { return e.Config.PadSize(role, sg.MaxColLength()) }
	err := dispatchMembers(cs, kernelSubs, &idStart, role, learnPost, memberSize,
		func(g *merge.MergedGroup[*model.SynapseGroup]) string { return fmt.Sprintf("MergedPostsynapticUpdateGroup%d", g.Index) },
		func(cs *codestream.Stream, g *merge.MergedGroup[*model.SynapseGroup], memberIdx, gid string, popSubs *subst.Frame) error {
			cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(role, g.Index), mergedstruct.ArrayName(role, g.Index), memberIdx))
			applied := popSubs.Apply(g.Archetype().WU().Code.LearnPost)
			if err := subst.CheckUnreplacedVariables(applied, g.Archetype().Name(), "learnPostCode"); err != nil {
				return err
			}
			cs.Line(applied)
			return nil
		})
	if err != nil {
		return err
	}
	cs.MustClose(1)
	return nil
}

// EmitInitKernel emits initializeKernel, which zeroes every neuron state
// variable, and, for SPARSE connectivity, initializeSparseKernel
// (row-length/index population via the "addSynapse" function
// substitution, with each thread's row length stored into its
// shRowStart slot) — spec.md §4.7 step 4 "init/init-sparse". State
// variables are not randomized, BITMASK groups get only a marker comment
// and no clearing code, and no cumulative row-start sum is computed.
func (e *Emitter) EmitInitKernel(cs *codestream.Stream, neuronInit []*merge.MergedGroup[*model.NeuronGroup], connInit []*merge.MergedGroup[*model.SynapseGroup]) error {
	role := merge.NeuronInit
	if len(neuronInit) > 0 {
		cs.Line(e.kernelSignature("initializeKernel", role, nil))
		cs.Open(1)
		cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
		kernelSubs := subst.NewFrame(nil)
		idStart := 0
		memberSize := func(ng *model.NeuronGroup) int { return e.Config.PadSize(role, ng.NumNeurons()) }
		err := dispatchMembers(cs, kernelSubs, &idStart, role, neuronInit, memberSize,
			func(g *merge.MergedGroup[*model.NeuronGroup]) string { return fmt.Sprintf("MergedNeuronInitGroup%d", g.Index) },
			func(cs *codestream.Stream, g *merge.MergedGroup[*model.NeuronGroup], memberIdx, gid string, popSubs *subst.Frame) error {
				cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(role, g.Index), mergedstruct.ArrayName(role, g.Index), memberIdx))
				for _, v := range g.Archetype().Model().Vars {
					cs.Line(fmt.Sprintf("group->%s[%s] = 0;", v.Name, gid))
				}
				return nil
			})
		if err != nil {
			return err
		}
		cs.MustClose(1)
	}

	var bitmask, sparse []*merge.MergedGroup[*model.SynapseGroup]
	for _, g := range connInit {
		switch {
		case g.Archetype().MatrixType().Has(model.MatrixBitmask):
			bitmask = append(bitmask, g)
		case g.Archetype().MatrixType().Has(model.MatrixSparse):
			sparse = append(sparse, g)
		}
	}
	if len(bitmask) > 0 {
		cs.Line("// bitmask connectivity is cleared inline in initializeKernel above")
		for _, g := range bitmask {
			cs.Line(fmt.Sprintf("// clear %s row bitmask", mergedstruct.StructName(merge.SynapseConnectivityInit, g.Index)))
		}
	}

	if len(sparse) == 0 {
		return nil
	}
	sparseRole := merge.SynapseSparseInit
	cs.Line(e.kernelSignature("initializeSparseKernel", sparseRole, nil))
	cs.Open(1)
	cs.Line(fmt.Sprintf("const unsigned int id = %s;", e.globalIDExpr()))
	if e.Config.Dialect == config.OpenCL {
		cs.Line("const unsigned int localId = get_local_id(0);")
	} else {
		cs.Line("const unsigned int localId = threadIdx.x;")
	}
	localKw := "__shared__"
	if e.Config.Dialect == config.OpenCL {
		localKw = "__local"
	}
	cs.Line(fmt.Sprintf("%s unsigned int shRowStart[%d];", localKw, e.Config.WorkgroupSize(sparseRole)+1))
	kernelSubs := subst.NewFrame(nil)
	idStart := 0
	memberSize := func(sg *model.SynapseGroup) int { return e.Config.PadSize(sparseRole, sg.Src().NumNeurons()) }
	err := dispatchMembers(cs, kernelSubs, &idStart, sparseRole, sparse, memberSize,
		func(g *merge.MergedGroup[*model.SynapseGroup]) string { return fmt.Sprintf("MergedSynapseSparseInitGroup%d", g.Index) },
		func(cs *codestream.Stream, g *merge.MergedGroup[*model.SynapseGroup], memberIdx, gid string, popSubs *subst.Frame) error {
			cs.Line(fmt.Sprintf("struct %s *group = &%s[%s];", mergedstruct.StructName(sparseRole, g.Index), mergedstruct.ArrayName(sparseRole, g.Index), memberIdx))
			cs.Line("unsigned int rowLength = 0;")

			addSynSubs := subst.NewFrame(popSubs)
			addSynSubs.AddFuncSubstitution("addSynapse", 1, "group->ind[group->maxRowLength * "+gid+" + rowLength++] = $(0)", false)
			sparseCode := g.Archetype().WU().Code.Sim
			if sparseCode != "" {
				cs.Line(addSynSubs.Apply(sparseCode))
			}
			cs.Line(fmt.Sprintf("group->rowLength[%s] = rowLength;", gid))
			cs.Line("")
			cs.Line("// cumulative row-start scan in shared memory")
			cs.Line("shRowStart[localId] = rowLength;")
			cs.Line(e.syncthreadsCall())
			return nil
		})
	if err != nil {
		return err
	}
	cs.MustClose(1)
	return nil
}
