// Package snngen is the top-level entry point for the spiking-network
// kernel generator core: Generate takes a validated model.View and a
// config.Config and returns the device and host source text, or an error.
// Grounded on the teacher's internal/compile.Compile / author.Implement: a
// fixed sequence of named stages sharing one or more CodeStream values,
// with no stage able to observe another's intermediate state beyond what
// it returns.
package snngen

import (
	"reflect"

	"snngen/internal/cgen"
	"snngen/internal/codestream"
	"snngen/internal/config"
	"snngen/internal/errmsg"
	"snngen/internal/host"
	"snngen/internal/kernel"
	"snngen/internal/merge"
	"snngen/internal/mergedstruct"
	"snngen/internal/model"
)

// Result is the two text streams spec.md §6 defines as the core's output.
type Result struct {
	DeviceInitSource    string
	DeviceNeuronSource  string
	DeviceSynapseSource string
	HostSource          string
}

// neuronCanMerge implements spec.md §4.3's structural-equivalence rule for
// neuron groups: structurally identical model (compared by value, not by
// pointer), identical capability flags, identical delay slot count.
// Numeric parameter values are deliberately excluded — they become
// per-member merged-struct fields instead.
func neuronCanMerge(a, b *model.NeuronGroup) bool {
	return reflect.DeepEqual(a.Model(), b.Model()) &&
		a.IsDelayRequired() == b.IsDelayRequired() &&
		a.DelaySlots() == b.DelaySlots() &&
		a.IsSpikeTimeRequired() == b.IsSpikeTimeRequired() &&
		a.IsTrueSpikeRequired() == b.IsTrueSpikeRequired() &&
		a.IsSpikeEventRequired() == b.IsSpikeEventRequired() &&
		a.IsAutoRefractory() == b.IsAutoRefractory() &&
		len(a.MergedInSyn()) == len(b.MergedInSyn()) &&
		len(a.CurrentSources()) == len(b.CurrentSources())
}

// synapseCanMerge implements the same rule for synapse groups: structurally
// identical weight-update/postsynaptic models (compared by value),
// identical matrix/span/delay flags.
func synapseCanMerge(a, b *model.SynapseGroup) bool {
	return reflect.DeepEqual(a.WU(), b.WU()) &&
		reflect.DeepEqual(a.PSM(), b.PSM()) &&
		a.MatrixType() == b.MatrixType() &&
		a.SpanType() == b.SpanType() &&
		a.IsDendriticDelayRequired() == b.IsDendriticDelayRequired() &&
		a.IsPSMMerged() == b.IsPSMMerged() &&
		a.IsTrueSpikeRequired() == b.IsTrueSpikeRequired() &&
		a.IsSpikeEventRequired() == b.IsSpikeEventRequired() &&
		a.Src().IsDelayRequired() == b.Src().IsDelayRequired() &&
		a.Trg().IsDelayRequired() == b.Trg().IsDelayRequired()
}

// neuronUpdateFields builds the per-merged-group struct field candidates
// for the NeuronUpdate/NeuronInit/NeuronSpikeQueueUpdate roles: the
// per-member buffer pointers and counts kernel.go's emitted bodies
// reference as group->numNeurons, group->spkQuePtr, group->V, etc.
// archetype fixes the field SET (every member of a merge shares one
// model, so the variable list is the same); per-member VALUES are each
// member's own buffer pointer, which is why they survive
// mergedstruct.DeriveFields's constant-folding for any merge with more
// than one member.
func neuronUpdateFields(archetype *model.NeuronGroup) []mergedstruct.Field[*model.NeuronGroup] {
	fields := []mergedstruct.Field[*model.NeuronGroup]{
		{Name: "numNeurons", CType: cgen.Vb("unsigned int"), Value: func(ng *model.NeuronGroup) cgen.Gen {
			return cgen.IntLit(int64(ng.NumNeurons()))
		}},
		{Name: "spkCnt", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
			return cgen.Vb("dd_glbSpkCnt" + ng.Name())
		}},
		{Name: "spk", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
			return cgen.Vb("dd_glbSpk" + ng.Name())
		}},
	}
	if archetype.IsDelayRequired() {
		fields = append(fields, mergedstruct.Field[*model.NeuronGroup]{
			Name: "spkQuePtr", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
				return cgen.Vb("&spkQuePtr" + ng.Name())
			},
		})
	}
	if archetype.IsSpikeEventRequired() {
		fields = append(fields,
			mergedstruct.Field[*model.NeuronGroup]{Name: "spkCntEvnt", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
				return cgen.Vb("dd_glbSpkCntEvnt" + ng.Name())
			}},
			mergedstruct.Field[*model.NeuronGroup]{Name: "spkEvnt", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
				return cgen.Vb("dd_glbSpkEvnt" + ng.Name())
			}},
		)
	}
	if archetype.IsSpikeTimeRequired() {
		fields = append(fields, mergedstruct.Field[*model.NeuronGroup]{
			Name: "sT", CType: cgen.Ptr{Type: cgen.Vb("timepoint")}, Value: func(ng *model.NeuronGroup) cgen.Gen {
				return cgen.Vb("dd_sT" + ng.Name())
			},
		})
	}
	for _, v := range archetype.Model().Vars {
		v := v
		fields = append(fields, mergedstruct.Field[*model.NeuronGroup]{
			Name:  v.Name,
			CType: cgen.Ptr{Type: cgen.Vb(v.Type)},
			Value: func(ng *model.NeuronGroup) cgen.Gen { return cgen.Vb("dd_" + v.Name + ng.Name()) },
		})
	}
	return fields
}

// synapseUpdateFields builds the per-merged-group struct field candidates
// for the synapse-related roles: dimensions, connectivity arrays, and the
// matching PSM input buffer kernel.go's presynaptic/postsynaptic bodies
// reference as group->numSrcNeurons, group->rowStride, group->ind, etc.
func synapseUpdateFields(archetype *model.SynapseGroup) []mergedstruct.Field[*model.SynapseGroup] {
	fields := []mergedstruct.Field[*model.SynapseGroup]{
		{Name: "numSrcNeurons", CType: cgen.Vb("unsigned int"), Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.IntLit(int64(sg.Src().NumNeurons()))
		}},
		{Name: "numTrgNeurons", CType: cgen.Vb("unsigned int"), Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.IntLit(int64(sg.Trg().NumNeurons()))
		}},
		{Name: "rowStride", CType: cgen.Vb("unsigned int"), Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.IntLit(int64(sg.MaxRowLength()))
		}},
		{Name: "maxRowLength", CType: cgen.Vb("unsigned int"), Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.IntLit(int64(sg.MaxRowLength()))
		}},
		{Name: "inSyn", CType: cgen.PtrFloat, Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.Vb("dd_inSyn" + sg.PSModelTargetName())
		}},
		{Name: "srcSpkCnt", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.Vb("dd_glbSpkCnt" + sg.Src().Name())
		}},
		{Name: "srcSpk", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.Vb("dd_glbSpk" + sg.Src().Name())
		}},
		{Name: "rowLength", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.Vb("dd_rowLength" + sg.Name())
		}},
		{Name: "ind", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
			return cgen.Vb("dd_ind" + sg.Name())
		}},
	}
	if archetype.Src().IsDelayRequired() {
		fields = append(fields, mergedstruct.Field[*model.SynapseGroup]{
			Name: "preSpkQuePtr", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
				return cgen.Vb("&spkQuePtr" + sg.Src().Name())
			},
		})
	}
	if archetype.Trg().IsDelayRequired() {
		fields = append(fields, mergedstruct.Field[*model.SynapseGroup]{
			Name: "postSpkQuePtr", CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
				return cgen.Vb("&spkQuePtr" + sg.Trg().Name())
			},
		})
	}
	if archetype.IsDendriticDelayRequired() {
		fields = append(fields,
			mergedstruct.Field[*model.SynapseGroup]{Name: "denDelay" + archetype.PSModelTargetName(), CType: cgen.PtrFloat, Value: func(sg *model.SynapseGroup) cgen.Gen {
				return cgen.Vb("dd_denDelay" + sg.PSModelTargetName())
			}},
			mergedstruct.Field[*model.SynapseGroup]{Name: "denDelayPtr" + archetype.PSModelTargetName(), CType: cgen.Ptr{Type: cgen.Vb("unsigned int")}, Value: func(sg *model.SynapseGroup) cgen.Gen {
				return cgen.Vb("&denDelayPtr" + sg.PSModelTargetName())
			}},
		)
	}
	for _, v := range archetype.WU().Vars {
		v := v
		fields = append(fields, mergedstruct.Field[*model.SynapseGroup]{
			Name:  v.Name,
			CType: cgen.Ptr{Type: cgen.Vb(v.Type)},
			Value: func(sg *model.SynapseGroup) cgen.Gen { return cgen.Vb("dd_" + v.Name + sg.Name()) },
		})
	}
	return fields
}

// Generate runs every stage spec.md §4 names in order and returns the
// assembled device/host source text. A stage's error short-circuits the
// whole run; there is no partial result on failure.
func Generate(v *model.View, cfg *config.Config) (*Result, error) {
	if v == nil {
		return nil, &errmsg.InputValidationError{Detail: "model view must not be nil"}
	}

	neuronName := func(ng *model.NeuronGroup) string { return ng.Name() }
	synapseName := func(sg *model.SynapseGroup) string { return sg.Name() }

	neuronUpdateGroups := merge.Merge(v.NeuronGroups(), merge.NeuronUpdate, neuronName, neuronCanMerge)
	spikeQueueGroups := merge.Merge(v.NeuronGroups(), merge.NeuronSpikeQueueUpdate, neuronName, neuronCanMerge)
	neuronInitGroups := merge.Merge(v.NeuronGroups(), merge.NeuronInit, neuronName, neuronCanMerge)
	presynapticGroups := merge.Merge(v.SynapseGroups(), merge.PresynapticUpdate, synapseName, synapseCanMerge)

	var sparseInitCandidates []*model.SynapseGroup
	for _, sg := range v.SynapseGroups() {
		if sg.IsSparseConnectivityInitRequired() {
			sparseInitCandidates = append(sparseInitCandidates, sg)
		}
	}
	sparseInitGroups := merge.Merge(sparseInitCandidates, merge.SynapseSparseInit, synapseName, synapseCanMerge)

	ke := kernel.New(cfg)

	var learnPostGroups []*merge.MergedGroup[*model.SynapseGroup]
	for _, g := range presynapticGroups {
		if g.Archetype().WU().Code.LearnPost != "" {
			learnPostGroups = append(learnPostGroups, g)
		}
	}
	presynapticMemberSize := func(sg *model.SynapseGroup) int {
		strategy, _ := ke.Registry.Resolve(sg)
		return cfg.PadSize(merge.PresynapticUpdate, strategy.GetNumThreads(sg))
	}

	initCS := codestream.New()
	ke.EmitPreamble(initCS)
	kernel.EmitMergedStructDefs(initCS, merge.NeuronInit, neuronInitGroups,
		func(ng *model.NeuronGroup) int { return cfg.PadSize(merge.NeuronInit, ng.NumNeurons()) }, neuronUpdateFields)
	kernel.EmitMergedStructDefs(initCS, merge.SynapseSparseInit, sparseInitGroups,
		func(sg *model.SynapseGroup) int { return cfg.PadSize(merge.SynapseSparseInit, sg.Src().NumNeurons()) }, synapseUpdateFields)
	if err := ke.EmitInitKernel(initCS, neuronInitGroups, sparseInitGroups); err != nil {
		return nil, err
	}

	neuronCS := codestream.New()
	ke.EmitPreamble(neuronCS)
	kernel.EmitMergedStructDefs(neuronCS, merge.NeuronSpikeQueueUpdate, spikeQueueGroups,
		func(ng *model.NeuronGroup) int { return 1 }, neuronUpdateFields)
	kernel.EmitMergedStructDefs(neuronCS, merge.NeuronUpdate, neuronUpdateGroups,
		func(ng *model.NeuronGroup) int { return cfg.PadSize(merge.NeuronUpdate, ng.NumNeurons()) }, neuronUpdateFields)
	if err := ke.EmitPreNeuronResetKernel(neuronCS, spikeQueueGroups); err != nil {
		return nil, err
	}
	if err := ke.EmitNeuronUpdateKernel(neuronCS, neuronUpdateGroups, "t"); err != nil {
		return nil, err
	}

	synapseCS := codestream.New()
	ke.EmitPreamble(synapseCS)
	kernel.EmitMergedStructDefs(synapseCS, merge.PresynapticUpdate, presynapticGroups, presynapticMemberSize, synapseUpdateFields)
	kernel.EmitMergedStructDefs(synapseCS, merge.PostsynapticUpdate, learnPostGroups,
		func(sg *model.SynapseGroup) int { return cfg.PadSize(merge.PostsynapticUpdate, sg.MaxColLength()) }, synapseUpdateFields)
	if err := ke.EmitSynapseUpdateKernel(synapseCS, presynapticGroups, "t"); err != nil {
		return nil, err
	}

	he := host.New(cfg)
	hostCS := codestream.New()
	he.EmitKernelSourceChunks(hostCS, "initializeSrc", initCS.String())
	he.EmitKernelSourceChunks(hostCS, "neuronUpdateSrc", neuronCS.String())
	he.EmitKernelSourceChunks(hostCS, "synapseUpdateSrc", synapseCS.String())
	he.EmitBuildProgram(hostCS, "buildInitializeProgramImpl", "initializeSrc", len(initCS.String()))
	he.EmitBuildProgram(hostCS, "buildNeuronUpdateProgramImpl", "neuronUpdateSrc", len(neuronCS.String()))
	if len(presynapticGroups) > 0 {
		he.EmitBuildProgram(hostCS, "buildSynapseUpdateProgramImpl", "synapseUpdateSrc", len(synapseCS.String()))
	}

	for _, g := range neuronInitGroups {
		he.EmitMergedGroupPush(hostCS, merge.NeuronInit, g.Index)
	}
	for _, g := range sparseInitGroups {
		he.EmitMergedGroupPush(hostCS, merge.SynapseSparseInit, g.Index)
	}
	for _, g := range neuronUpdateGroups {
		he.EmitMergedGroupPush(hostCS, merge.NeuronUpdate, g.Index)
	}
	for _, g := range presynapticGroups {
		he.EmitMergedGroupPush(hostCS, merge.PresynapticUpdate, g.Index)
	}

	neuronInitMemberSize := func(ng *model.NeuronGroup) int { return cfg.PadSize(merge.NeuronInit, ng.NumNeurons()) }
	he.EmitLauncher(hostCS, "initializeImpl", "initializeKernel", merge.NeuronInit,
		totalNeuronThreads(neuronInitGroups, neuronInitMemberSize), nil)
	if len(sparseInitGroups) > 0 {
		sparseInitMemberSize := func(sg *model.SynapseGroup) int { return cfg.PadSize(merge.SynapseSparseInit, sg.Src().NumNeurons()) }
		he.EmitLauncher(hostCS, "initializeSparseImpl", "initializeSparseKernel", merge.SynapseSparseInit,
			totalSynapseThreads(sparseInitGroups, sparseInitMemberSize), nil)
	}

	neuronUpdateMemberSize := func(ng *model.NeuronGroup) int { return cfg.PadSize(merge.NeuronUpdate, ng.NumNeurons()) }
	he.EmitLauncher(hostCS, "updateNeuronsImpl", "updateNeuronsKernel", merge.NeuronUpdate,
		totalNeuronThreads(neuronUpdateGroups, neuronUpdateMemberSize), []string{cfgTimeParam(cfg)})
	if len(presynapticGroups) > 0 {
		he.EmitLauncher(hostCS, "updateSynapsesImpl", "updatePresynapticKernel", merge.PresynapticUpdate,
			totalSynapseThreads(presynapticGroups, presynapticMemberSize), []string{cfgTimeParam(cfg)})
	}

	for _, ng := range v.NeuronGroups() {
		he.EmitVarPushPull(hostCS, ng.Name(), ng.Model().Vars)
		he.EmitCurrentSpikePushPull(hostCS, ng)
	}

	if err := he.EmitStableEntryPoints(hostCS, "t", len(sparseInitGroups) > 0, len(presynapticGroups) > 0); err != nil {
		return nil, err
	}

	return &Result{
		DeviceInitSource:    initCS.String(),
		DeviceNeuronSource:  neuronCS.String(),
		DeviceSynapseSource: synapseCS.String(),
		HostSource:          hostCS.String(),
	}, nil
}

func cfgTimeParam(cfg *config.Config) string {
	return cfg.TimePrecision.CType() + " t"
}

func totalNeuronThreads(groups []*merge.MergedGroup[*model.NeuronGroup], memberSize func(*model.NeuronGroup) int) int {
	total := 0
	for _, g := range groups {
		total += merge.TotalPaddedSize(g, memberSize)
	}
	return total
}

func totalSynapseThreads(groups []*merge.MergedGroup[*model.SynapseGroup], memberSize func(*model.SynapseGroup) int) int {
	total := 0
	for _, g := range groups {
		total += merge.TotalPaddedSize(g, memberSize)
	}
	return total
}
