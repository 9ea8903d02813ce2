package kernel

import (
	"strings"
	"testing"

	"snngen/internal/codestream"
	"snngen/internal/config"
	"snngen/internal/merge"
	"snngen/internal/model"
)

func lifNeuronModel() *model.NeuronModel {
	return &model.NeuronModel{
		Kind: "LIF",
		Vars: []model.Var{{Name: "V", Type: "scalar"}},
		Code: model.CodeBlocks{
			Sim:       "$(V) += 1;",
			Threshold: "$(V) >= 1",
			Reset:     "$(V) = 0;",
		},
	}
}

func simpleView(t *testing.T) *model.View {
	t.Helper()
	v, err := model.NewView(
		[]model.NeuronGroupSpec{
			{Name: "Pop0", NumNeurons: 100, Model: lifNeuronModel(), RequiresTrueSpike: true},
		},
		nil,
		model.Float32, model.Float32,
	)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestEmitPreambleWritesScalarTypedefAndAtomicHelper(t *testing.T) {
	e := New(&config.Config{ScalarPrecision: model.Float32, Dialect: config.CUDA})
	cs := codestream.New()
	e.EmitPreamble(cs)
	out := cs.String()
	if !strings.Contains(out, "typedef float scalar;") {
		t.Fatalf("missing scalar typedef in:\n%s", out)
	}
	if !strings.Contains(out, "atomicAddFloat") {
		t.Fatalf("missing float atomic helper in:\n%s", out)
	}
	if !cs.Balanced() {
		t.Fatal("unbalanced scopes after EmitPreamble")
	}
}

func TestEmitNeuronUpdateKernelEmitsThresholdAndSpikeEmission(t *testing.T) {
	v := simpleView(t)
	e := New(&config.Config{ScalarPrecision: model.Float32, Dialect: config.CUDA})
	groups := merge.Merge(v.NeuronGroups(), merge.NeuronUpdate, func(ng *model.NeuronGroup) string { return ng.Name() }, func(a, b *model.NeuronGroup) bool { return false })

	cs := codestream.New()
	if err := e.EmitNeuronUpdateKernel(cs, groups, "t"); err != nil {
		t.Fatal(err)
	}
	out := cs.String()
	if !strings.Contains(out, "updateNeuronsKernel") {
		t.Fatalf("missing kernel signature in:\n%s", out)
	}
	if !strings.Contains(out, "lV >= 1") {
		t.Fatalf("missing substituted threshold condition in:\n%s", out)
	}
	if !strings.Contains(out, "shSpkCount") {
		t.Fatalf("missing spike staging declaration in:\n%s", out)
	}
	if !cs.Balanced() {
		t.Fatal("unbalanced scopes after EmitNeuronUpdateKernel")
	}
}

func TestEmitNeuronUpdateKernelWiresSupportCodeNamespaces(t *testing.T) {
	nm := &model.NeuronModel{
		Kind: "LIF",
		Vars: []model.Var{{Name: "V", Type: "scalar"}},
		Code: model.CodeBlocks{
			Sim:       "$(V) += 1;",
			Threshold: "$(V) >= 1",
			Reset:     "$(V) = 0;",
			Support:   "inline float sharpen(float x) { return x * x; }",
		},
	}
	psm := &model.PostsynapticModel{
		Kind:           "ExpCurr",
		ApplyInputCode: "$(Isyn) += $(inSyn);",
		Support:        "inline float decayRate(float tau) { return 1.0f / tau; }",
	}
	v, err := model.NewView(
		[]model.NeuronGroupSpec{
			{Name: "Pre", NumNeurons: 10, Model: lifNeuronModel()},
			{Name: "Post", NumNeurons: 10, Model: nm, RequiresTrueSpike: true},
		},
		[]model.SynapseGroupSpec{
			{Name: "Pre_Post", Src: "Pre", Trg: "Post", MatrixType: model.MatrixDense, PSM: psm},
		},
		model.Float32, model.Float32,
	)
	if err != nil {
		t.Fatal(err)
	}
	e := New(&config.Config{ScalarPrecision: model.Float32, Dialect: config.CUDA})
	groups := merge.Merge(v.NeuronGroups(), merge.NeuronUpdate, func(ng *model.NeuronGroup) string { return ng.Name() }, func(a, b *model.NeuronGroup) bool { return false })

	cs := codestream.New()
	if err := e.EmitNeuronUpdateKernel(cs, groups, "t"); err != nil {
		t.Fatal(err)
	}
	out := cs.String()
	if !strings.Contains(out, "namespace Post_neuron") {
		t.Fatalf("missing neuron support-code namespace in:\n%s", out)
	}
	if !strings.Contains(out, "namespace Pre_Post_postsyn") {
		t.Fatalf("missing postsynaptic support-code namespace in:\n%s", out)
	}
	if !strings.Contains(out, "using namespace Post_neuron;") {
		t.Fatalf("missing neuron using-directive in:\n%s", out)
	}
	if !strings.Contains(out, "using namespace Pre_Post_postsyn;") {
		t.Fatalf("missing postsyn using-directive in:\n%s", out)
	}
	if !cs.Balanced() {
		t.Fatal("unbalanced scopes after EmitNeuronUpdateKernel")
	}
}

func TestEmitPreNeuronResetKernelCyclesDelayPointer(t *testing.T) {
	v, err := model.NewView(
		[]model.NeuronGroupSpec{
			{Name: "Pop0", NumNeurons: 50, Model: lifNeuronModel(), RequiresDelay: true, DelaySlots: 4, RequiresTrueSpike: true},
		},
		nil, model.Float32, model.Float32,
	)
	if err != nil {
		t.Fatal(err)
	}
	e := New(&config.Config{ScalarPrecision: model.Float32, Dialect: config.CUDA})
	groups := merge.Merge(v.NeuronGroups(), merge.NeuronSpikeQueueUpdate, func(ng *model.NeuronGroup) string { return ng.Name() }, func(a, b *model.NeuronGroup) bool { return false })

	cs := codestream.New()
	if err := e.EmitPreNeuronResetKernel(cs, groups); err != nil {
		t.Fatal(err)
	}
	out := cs.String()
	if !strings.Contains(out, "% 4") {
		t.Fatalf("missing delay-slot modulus in:\n%s", out)
	}
	if !cs.Balanced() {
		t.Fatal("unbalanced scopes after EmitPreNeuronResetKernel")
	}
}

func TestEmitSupportCodeNamespacesDedupesIdenticalCode(t *testing.T) {
	cs := codestream.New()
	nsOf := EmitSupportCodeNamespaces(cs, "postsyn", []supportCodeKey{
		{groupName: "SynA", code: "inline float f(float x) { return x; }"},
		{groupName: "SynB", code: "inline float f(float x) { return x; }"},
		{groupName: "SynC", code: ""},
	})
	if nsOf["SynA"] != nsOf["SynB"] {
		t.Fatalf("expected SynA and SynB to share a namespace, got %q vs %q", nsOf["SynA"], nsOf["SynB"])
	}
	if _, ok := nsOf["SynC"]; ok {
		t.Fatal("expected no namespace entry for group with empty support code")
	}
	if strings.Count(cs.String(), "namespace") != 1 {
		t.Fatalf("expected exactly one namespace emitted, got:\n%s", cs.String())
	}
}

func TestEmitSynapseUpdateKernelReturnsNotYetImplementedForSynapseDynamics(t *testing.T) {
	src := model.NeuronGroupSpec{Name: "Pre", NumNeurons: 10, Model: lifNeuronModel()}
	trg := model.NeuronGroupSpec{Name: "Post", NumNeurons: 10, Model: lifNeuronModel()}
	sg := model.SynapseGroupSpec{
		Name: "Syn", Src: "Pre", Trg: "Post",
		MatrixType: model.MatrixDense | model.MatrixIndividualPSM,
		SpanType:   model.SpanPresynaptic,
		WU: &model.WeightUpdateModel{
			Vars: []model.Var{{Name: "g", Type: "scalar", Loc: model.VarLocHost | model.VarLocDevice}},
			Code: model.CodeBlocks{Sim: "$(addtoinSyn, $(g));", SynapseDynamics: "$(g) += 0;"},
		},
	}
	v, err := model.NewView([]model.NeuronGroupSpec{src, trg}, []model.SynapseGroupSpec{sg}, model.Float32, model.Float32)
	if err != nil {
		t.Fatal(err)
	}
	e := New(&config.Config{ScalarPrecision: model.Float32, Dialect: config.CUDA})
	groups := merge.Merge(v.SynapseGroups(), merge.PresynapticUpdate, func(sg *model.SynapseGroup) string { return sg.Name() }, func(a, b *model.SynapseGroup) bool { return false })

	cs := codestream.New()
	err = e.EmitSynapseUpdateKernel(cs, groups, "t")
	if err == nil {
		t.Fatal("expected NotYetImplementedError for synapse dynamics, got nil")
	}
	if !strings.Contains(err.Error(), "not yet implemented") {
		t.Fatalf("got %v, want not-yet-implemented error", err)
	}
}
