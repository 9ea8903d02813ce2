// Package model is the read-only view of a validated spiking-network model:
// neuron groups, synapse groups, and the flags that the rest of the core
// branches on. Construction is the only place the graph is built; after
// NewView returns, nothing here mutates.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Precision is the scalar or time precision used by a model.
type Precision int

const (
	Float64 Precision = iota
	Float32
)

func (p Precision) CType() string {
	if p == Float32 {
		return "float"
	}
	return "double"
}

// VarLoc is a bitset of storage-location flags for a state variable.
type VarLoc int

const (
	VarLocHost VarLoc = 1 << iota
	VarLocDevice
)

// Var is one state variable, parameter, or extra global parameter.
type Var struct {
	Name string
	Type string
	Loc  VarLoc
}

// CodeBlocks holds the user-supplied device-source snippets a model
// attaches to its update points.
type CodeBlocks struct {
	Sim                 string
	Threshold           string
	Reset               string
	Event               string
	LearnPost           string
	SynapseDynamics     string
	Support             string
	AdditionalInputVars []Var
}

// NeuronModel is the small capability set a user-supplied neuron model
// presents: names, var lists, code blocks. It is a value type, held by
// shared reference from every NeuronGroup that uses it, per spec.md §9
// ("model this as a trait/interface with a value-typed struct").
type NeuronModel struct {
	Kind              string
	Vars              []Var
	Params            []string
	DerivedParams     []string
	ExtraGlobalParams []Var
	Code              CodeBlocks
}

// WeightUpdateModel is the weight-update half of a synapse group's model.
type WeightUpdateModel struct {
	Kind              string
	Vars              []Var
	Params            []string
	DerivedParams     []string
	ExtraGlobalParams []Var
	Code              CodeBlocks
}

// PostsynapticModel is the postsynaptic half of a synapse group's model.
type PostsynapticModel struct {
	Kind              string
	Vars              []Var
	Params            []string
	DerivedParams     []string
	ExtraGlobalParams []Var
	ApplyInputCode    string
	Support           string
}

// CurrentSourceModel is a small current-injection model attached directly
// to a neuron group (spec.md §3, NeuronGroup.currentSources; emission
// sequence grounded on original_source generateNeuronUpdate.cc).
type CurrentSourceModel struct {
	Kind              string
	Vars              []Var
	Params            []string
	DerivedParams     []string
	ExtraGlobalParams []Var
	InjectionCode     string
}

type CurrentSource struct {
	Name                string
	Model               *CurrentSourceModel
	ParamValues         []float64
	DerivedParamValues  []float64
}

// NeuronGroup is a population of structurally identical neurons.
type NeuronGroup struct {
	name               string
	numNeurons         int
	model              *NeuronModel
	paramValues        []float64
	derivedParamValues []float64
	delaySlots         int

	requiresDelay        bool
	requiresSpikeTime    bool
	requiresTrueSpike    bool
	requiresSpikeEvent   bool
	requiresSimRNG       bool
	requiresInitRNG      bool
	autoRefractory       bool

	inSyn         []*SynapseGroup // incoming, merged postsynaptic inputs
	outSyn        []*SynapseGroup // outgoing
	currentSources []*CurrentSource

	id int64 // stable arena index, also the gonum graph node ID
}

func (ng *NeuronGroup) Name() string                { return ng.name }
func (ng *NeuronGroup) NumNeurons() int              { return ng.numNeurons }
func (ng *NeuronGroup) Model() *NeuronModel          { return ng.model }
func (ng *NeuronGroup) ParamValues() []float64       { return ng.paramValues }
func (ng *NeuronGroup) DerivedParamValues() []float64 { return ng.derivedParamValues }
func (ng *NeuronGroup) DelaySlots() int              { return ng.delaySlots }
func (ng *NeuronGroup) IsDelayRequired() bool        { return ng.requiresDelay }
func (ng *NeuronGroup) IsSpikeTimeRequired() bool    { return ng.requiresSpikeTime }
func (ng *NeuronGroup) IsTrueSpikeRequired() bool    { return ng.requiresTrueSpike }
func (ng *NeuronGroup) IsSpikeEventRequired() bool   { return ng.requiresSpikeEvent }
func (ng *NeuronGroup) IsSimRNGRequired() bool       { return ng.requiresSimRNG }
func (ng *NeuronGroup) IsInitRNGRequired() bool      { return ng.requiresInitRNG }
func (ng *NeuronGroup) IsAutoRefractory() bool       { return ng.autoRefractory }
func (ng *NeuronGroup) MergedInSyn() []*SynapseGroup { return ng.inSyn }
func (ng *NeuronGroup) OutSyn() []*SynapseGroup      { return ng.outSyn }
func (ng *NeuronGroup) CurrentSources() []*CurrentSource { return ng.currentSources }
func (ng *NeuronGroup) ID() int64                    { return ng.id }

// NeuronGroupSpec is the builder-supplied description of one neuron group.
type NeuronGroupSpec struct {
	Name               string
	NumNeurons         int
	Model              *NeuronModel
	ParamValues        []float64
	DerivedParamValues []float64
	DelaySlots         int
	RequiresDelay      bool
	RequiresSpikeTime  bool
	RequiresTrueSpike  bool
	RequiresSpikeEvent bool
	RequiresSimRNG     bool
	RequiresInitRNG    bool
	AutoRefractory     bool
	CurrentSources     []*CurrentSource
}

// MatrixType is a bitset over connectivity/weight storage flags.
type MatrixType int

const (
	MatrixDense MatrixType = 1 << iota
	MatrixSparse
	MatrixBitmask
	MatrixIndividualPSM
	MatrixProcedural
	MatrixGlobal
	MatrixIndividualG
)

func (m MatrixType) Has(f MatrixType) bool { return m&f != 0 }

// SpanType is the parallelism axis a synapse group's update is dispatched
// over.
type SpanType int

const (
	SpanPresynaptic SpanType = iota
	SpanPostsynaptic
)

// SynapseGroup is a directed, weighted connection between two neuron groups.
type SynapseGroup struct {
	name                       string
	matrixType                 MatrixType
	delaySteps                 int
	maxDendriticDelayTimesteps int
	src, trg                   *NeuronGroup
	wu                         *WeightUpdateModel
	wuParamValues              []float64
	wuDerivedParamValues       []float64
	psm                        *PostsynapticModel
	psmParamValues             []float64
	psmDerivedParamValues      []float64
	spanType                   SpanType
	maxRowLength               int
	maxColLength               int

	trueSpikeRequired          bool
	spikeEventRequired         bool
	eventThresholdRetestNeeded bool
	dendriticDelayRequired     bool
	psmMerged                  bool
	wuVarInitRequired          bool
	sparseConnInitRequired     bool
	wuInitRNGRequired          bool
	proceduralConnRNGRequired  bool

	id int64
}

func (sg *SynapseGroup) Name() string                  { return sg.name }
func (sg *SynapseGroup) MatrixType() MatrixType         { return sg.matrixType }
func (sg *SynapseGroup) DelaySteps() int                { return sg.delaySteps }
func (sg *SynapseGroup) MaxDendriticDelayTimesteps() int { return sg.maxDendriticDelayTimesteps }
func (sg *SynapseGroup) Src() *NeuronGroup              { return sg.src }
func (sg *SynapseGroup) Trg() *NeuronGroup              { return sg.trg }
func (sg *SynapseGroup) WU() *WeightUpdateModel         { return sg.wu }
func (sg *SynapseGroup) WUParamValues() []float64       { return sg.wuParamValues }
func (sg *SynapseGroup) WUDerivedParamValues() []float64 { return sg.wuDerivedParamValues }
func (sg *SynapseGroup) PSM() *PostsynapticModel        { return sg.psm }
func (sg *SynapseGroup) PSMParamValues() []float64      { return sg.psmParamValues }
func (sg *SynapseGroup) PSMDerivedParamValues() []float64 { return sg.psmDerivedParamValues }
func (sg *SynapseGroup) SpanType() SpanType             { return sg.spanType }
func (sg *SynapseGroup) MaxRowLength() int              { return sg.maxRowLength }
func (sg *SynapseGroup) MaxColLength() int              { return sg.maxColLength }
func (sg *SynapseGroup) IsTrueSpikeRequired() bool            { return sg.trueSpikeRequired }
func (sg *SynapseGroup) IsSpikeEventRequired() bool           { return sg.spikeEventRequired }
func (sg *SynapseGroup) IsEventThresholdRetestRequired() bool { return sg.eventThresholdRetestNeeded }
func (sg *SynapseGroup) IsDendriticDelayRequired() bool       { return sg.dendriticDelayRequired }
func (sg *SynapseGroup) IsPSMMerged() bool                    { return sg.psmMerged }
func (sg *SynapseGroup) IsWUVarInitRequired() bool            { return sg.wuVarInitRequired }
func (sg *SynapseGroup) IsSparseConnectivityInitRequired() bool { return sg.sparseConnInitRequired }
func (sg *SynapseGroup) IsWUInitRNGRequired() bool            { return sg.wuInitRNGRequired }
func (sg *SynapseGroup) IsProceduralConnectivityRNGRequired() bool { return sg.proceduralConnRNGRequired }
func (sg *SynapseGroup) ID() int64                            { return sg.id }

// PSModelTargetName is the name synapse-group-target-qualified identifiers
// are built from (e.g. "inSyn"+PSModelTargetName()), grounded on
// SynapseGroup::getPSModelTargetName in the original source.
func (sg *SynapseGroup) PSModelTargetName() string { return sg.name }

// SynapseGroupSpec is the builder-supplied description of one synapse group.
type SynapseGroupSpec struct {
	Name                       string
	MatrixType                 MatrixType
	DelaySteps                 int
	MaxDendriticDelayTimesteps int
	Src, Trg                   string
	WU                         *WeightUpdateModel
	WUParamValues              []float64
	WUDerivedParamValues       []float64
	PSM                        *PostsynapticModel
	PSMParamValues             []float64
	PSMDerivedParamValues      []float64
	SpanType                   SpanType
	MaxRowLength               int
	MaxColLength               int
	TrueSpikeRequired          bool
	SpikeEventRequired         bool
	EventThresholdRetestNeeded bool
	DendriticDelayRequired     bool
	PSMMerged                  bool
	WUVarInitRequired          bool
	SparseConnInitRequired     bool
	WUInitRNGRequired          bool
	ProceduralConnRNGRequired  bool
}

// View is the immutable, validated model the rest of the core consumes.
type View struct {
	neuronGroups  []*NeuronGroup
	synapseGroups []*SynapseGroup
	byName        map[string]bool
	graph         *simple.DirectedGraph
	scalar        Precision
	time          Precision
}

// NewView validates and builds a View from builder-supplied specs. Names
// must be unique across both neuron and synapse groups, and every synapse
// group's Src/Trg must name an already-declared neuron group — both
// documented invariants whose violation is an InputValidationError at the
// boundary (spec.md §7).
func NewView(neuronSpecs []NeuronGroupSpec, synapseSpecs []SynapseGroupSpec, scalar, time Precision) (*View, error) {
	v := &View{
		byName: make(map[string]bool, len(neuronSpecs)+len(synapseSpecs)),
		graph:  simple.NewDirectedGraph(),
		scalar: scalar,
		time:   time,
	}
	byName := make(map[string]*NeuronGroup, len(neuronSpecs))
	for i, spec := range neuronSpecs {
		if spec.Name == "" {
			return nil, &DuplicateNameError{Name: spec.Name, Reason: "neuron group name must not be empty"}
		}
		if v.byName[spec.Name] {
			return nil, &DuplicateNameError{Name: spec.Name}
		}
		v.byName[spec.Name] = true
		ng := &NeuronGroup{
			name:               spec.Name,
			numNeurons:         spec.NumNeurons,
			model:              spec.Model,
			paramValues:        spec.ParamValues,
			derivedParamValues: spec.DerivedParamValues,
			delaySlots:         spec.DelaySlots,
			requiresDelay:      spec.RequiresDelay,
			requiresSpikeTime:  spec.RequiresSpikeTime,
			requiresTrueSpike:  spec.RequiresTrueSpike,
			requiresSpikeEvent: spec.RequiresSpikeEvent,
			requiresSimRNG:     spec.RequiresSimRNG,
			requiresInitRNG:    spec.RequiresInitRNG,
			autoRefractory:     spec.AutoRefractory,
			currentSources:     spec.CurrentSources,
			id:                 int64(i),
		}
		v.neuronGroups = append(v.neuronGroups, ng)
		byName[spec.Name] = ng
		v.graph.AddNode(simple.Node(ng.id))
	}
	for i, spec := range synapseSpecs {
		if spec.Name == "" || v.byName[spec.Name] {
			return nil, &DuplicateNameError{Name: spec.Name}
		}
		src, ok := byName[spec.Src]
		if !ok {
			return nil, &UnknownGroupError{Name: spec.Src, Context: "synapse group " + spec.Name + " source"}
		}
		trg, ok := byName[spec.Trg]
		if !ok {
			return nil, &UnknownGroupError{Name: spec.Trg, Context: "synapse group " + spec.Name + " target"}
		}
		v.byName[spec.Name] = true
		sg := &SynapseGroup{
			name:                       spec.Name,
			matrixType:                 spec.MatrixType,
			delaySteps:                 spec.DelaySteps,
			maxDendriticDelayTimesteps: spec.MaxDendriticDelayTimesteps,
			src:                        src,
			trg:                        trg,
			wu:                         spec.WU,
			wuParamValues:              spec.WUParamValues,
			wuDerivedParamValues:       spec.WUDerivedParamValues,
			psm:                        spec.PSM,
			psmParamValues:             spec.PSMParamValues,
			psmDerivedParamValues:      spec.PSMDerivedParamValues,
			spanType:                   spec.SpanType,
			maxRowLength:               spec.MaxRowLength,
			maxColLength:               spec.MaxColLength,
			trueSpikeRequired:          spec.TrueSpikeRequired,
			spikeEventRequired:         spec.SpikeEventRequired,
			eventThresholdRetestNeeded: spec.EventThresholdRetestNeeded,
			dendriticDelayRequired:     spec.DendriticDelayRequired,
			psmMerged:                  spec.PSMMerged,
			wuVarInitRequired:          spec.WUVarInitRequired,
			sparseConnInitRequired:     spec.SparseConnInitRequired,
			wuInitRNGRequired:          spec.WUInitRNGRequired,
			proceduralConnRNGRequired:  spec.ProceduralConnRNGRequired,
			id:                         int64(i),
		}
		v.synapseGroups = append(v.synapseGroups, sg)
		src.outSyn = append(src.outSyn, sg)
		trg.inSyn = append(trg.inSyn, sg)
		// Signal flow src -> trg; the node IDs are the neuron-group arena
		// indices, so this is the "arena + stable integer index" graph
		// spec.md §9 calls for, not a separate ID space.
		v.graph.SetEdge(v.graph.NewEdge(simple.Node(src.id), simple.Node(trg.id)))
	}

	// A synapse group that closes a feedback loop with zero delay has no
	// well-defined update order within one timestep: its target's new spike
	// would need to be visible to its source in the same step. Original
	// GeNN requires nonzero delay on any synaptic path that can reach back
	// to its own source; HasPath is how that check is expressed here, over
	// a graph holding only the zero-delay synapse groups, so a cycle that
	// passes through at least one delayed synapse group is accepted.
	zeroDelay := &View{graph: simple.NewDirectedGraph()}
	for _, ng := range v.neuronGroups {
		zeroDelay.graph.AddNode(simple.Node(ng.id))
	}
	for _, sg := range v.synapseGroups {
		if sg.delaySteps == 0 {
			zeroDelay.graph.SetEdge(zeroDelay.graph.NewEdge(simple.Node(sg.src.id), simple.Node(sg.trg.id)))
		}
	}
	for _, sg := range v.synapseGroups {
		if sg.delaySteps != 0 {
			continue
		}
		if zeroDelay.HasPath(sg.trg, sg.src) {
			return nil, &ZeroDelayFeedbackLoopError{SynapseGroupName: sg.name}
		}
	}
	return v, nil
}

func (v *View) NeuronGroups() []*NeuronGroup   { return v.neuronGroups }
func (v *View) SynapseGroups() []*SynapseGroup { return v.synapseGroups }
func (v *View) ScalarPrecision() Precision     { return v.scalar }
func (v *View) TimePrecision() Precision       { return v.time }

// HasPath reports whether there is a directed path of synaptic connections
// from a to b. NewView uses it to reject synapse groups that close a
// zero-delay feedback loop.
func (v *View) HasPath(a, b *NeuronGroup) bool {
	visited := make(map[int64]bool)
	var stack []graph.Node
	stack = append(stack, simple.Node(a.id))
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n.ID()] {
			continue
		}
		visited[n.ID()] = true
		if n.ID() == b.id {
			return true
		}
		to := v.graph.From(n.ID())
		for to.Next() {
			stack = append(stack, to.Node())
		}
	}
	return false
}

// DuplicateNameError is an InputValidationError: two groups share a name.
type DuplicateNameError struct {
	Name   string
	Reason string
}

func (e *DuplicateNameError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("input validation: %s", e.Reason)
	}
	return fmt.Sprintf("input validation: duplicate group name %q", e.Name)
}

// UnknownGroupError is an InputValidationError: a synapse group references
// a neuron group that was never declared.
type UnknownGroupError struct {
	Name    string
	Context string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("input validation: %s references unknown neuron group %q", e.Context, e.Name)
}

// ZeroDelayFeedbackLoopError is an InputValidationError: a synapse group
// closes a cycle of synaptic connections back to its own source without
// any delay steps.
type ZeroDelayFeedbackLoopError struct {
	SynapseGroupName string
}

func (e *ZeroDelayFeedbackLoopError) Error() string {
	return fmt.Sprintf("input validation: synapse group %q closes a zero-delay feedback loop", e.SynapseGroupName)
}
