package snngen

import (
	"strings"
	"testing"

	"snngen/internal/config"
	"snngen/internal/model"
)

func lifModel() *model.NeuronModel {
	return &model.NeuronModel{
		Kind: "LIF",
		Vars: []model.Var{{Name: "V", Type: "scalar", Loc: model.VarLocHost | model.VarLocDevice}},
		Code: model.CodeBlocks{
			Sim:       "$(V) += 1;",
			Threshold: "$(V) >= 1",
			Reset:     "$(V) = 0;",
		},
	}
}

func neuronOnlyView(t *testing.T) *model.View {
	t.Helper()
	v, err := model.NewView(
		[]model.NeuronGroupSpec{
			{Name: "Pop0", NumNeurons: 100, Model: lifModel(), RequiresTrueSpike: true},
		},
		nil, model.Float32, model.Float32,
	)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func defaultConfig() *config.Config {
	return &config.Config{ScalarPrecision: model.Float32, TimePrecision: model.Float32, Dialect: config.CUDA}
}

func TestGenerateRejectsNilView(t *testing.T) {
	if _, err := Generate(nil, defaultConfig()); err == nil {
		t.Fatal("expected an error for a nil model view")
	}
}

func TestGenerateEmitsAllFourSourceStreamsForNeuronOnlyModel(t *testing.T) {
	v := neuronOnlyView(t)
	res, err := Generate(v, defaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.DeviceNeuronSource, "updateNeuronsKernel") {
		t.Fatalf("missing neuron-update kernel in device neuron source:\n%s", res.DeviceNeuronSource)
	}
	if !strings.Contains(res.DeviceInitSource, "MergedNeuronInitGroup") {
		t.Fatalf("missing init merged struct in device init source:\n%s", res.DeviceInitSource)
	}
	if res.DeviceSynapseSource == "" {
		t.Fatal("expected a (preamble-only) synapse source even with no synapse groups")
	}
	for _, want := range []string{"buildInitializeProgram", "buildNeuronUpdateProgram", "updateNeurons(", "pushPop0ToDevice", "pushCurrentPop0SpikesToDevice"} {
		if !strings.Contains(res.HostSource, want) {
			t.Fatalf("missing %q in host source:\n%s", want, res.HostSource)
		}
	}
	if strings.Contains(res.HostSource, "buildSynapseUpdateProgram") {
		t.Fatal("did not expect a synapse-update build function with no synapse groups")
	}
}

func TestGenerateWiresPresynapticUpdateAndSparseInitForASynapseGroup(t *testing.T) {
	src := model.NeuronGroupSpec{Name: "Pre", NumNeurons: 10, Model: lifModel()}
	trg := model.NeuronGroupSpec{Name: "Post", NumNeurons: 10, Model: lifModel()}
	sg := model.SynapseGroupSpec{
		Name: "Syn", Src: "Pre", Trg: "Post",
		MatrixType:             model.MatrixSparse | model.MatrixIndividualPSM,
		SpanType:               model.SpanPresynaptic,
		SparseConnInitRequired: true,
		WU: &model.WeightUpdateModel{
			Vars: []model.Var{{Name: "g", Type: "scalar", Loc: model.VarLocHost | model.VarLocDevice}},
			Code: model.CodeBlocks{Sim: "$(addtoinSyn, $(g));"},
		},
		PSM: &model.PostsynapticModel{ApplyInputCode: "$(Isyn) += $(inSyn); $(inSyn) = 0;"},
	}
	v, err := model.NewView([]model.NeuronGroupSpec{src, trg}, []model.SynapseGroupSpec{sg}, model.Float32, model.Float32)
	if err != nil {
		t.Fatal(err)
	}

	res, err := Generate(v, defaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.DeviceSynapseSource, "updatePresynapticKernel") {
		t.Fatalf("missing presynaptic kernel in device synapse source:\n%s", res.DeviceSynapseSource)
	}
	if !strings.Contains(res.DeviceInitSource, "MergedSynapseSparseInitGroup") {
		t.Fatalf("missing sparse-init merged struct in device init source:\n%s", res.DeviceInitSource)
	}
	if !strings.Contains(res.HostSource, "buildSynapseUpdateProgram") {
		t.Fatalf("missing synapse-update build function in host source:\n%s", res.HostSource)
	}
	if !strings.Contains(res.HostSource, "initializeSparse()") {
		t.Fatalf("missing initializeSparse entry point in host source:\n%s", res.HostSource)
	}
}

func TestNeuronCanMergeIgnoresNumericParamsButNotCapabilityFlags(t *testing.T) {
	a := &model.NeuronGroupSpec{Name: "A", NumNeurons: 10, Model: lifModel(), RequiresTrueSpike: true}
	b := &model.NeuronGroupSpec{Name: "B", NumNeurons: 999, Model: lifModel(), RequiresTrueSpike: true}
	c := &model.NeuronGroupSpec{Name: "C", NumNeurons: 10, Model: lifModel(), RequiresTrueSpike: false}
	v, err := model.NewView([]model.NeuronGroupSpec{*a, *b, *c}, nil, model.Float32, model.Float32)
	if err != nil {
		t.Fatal(err)
	}
	groups := v.NeuronGroups()
	if !neuronCanMerge(groups[0], groups[1]) {
		t.Fatal("expected groups differing only in NumNeurons to be mergeable")
	}
	if neuronCanMerge(groups[0], groups[2]) {
		t.Fatal("expected groups differing in RequiresTrueSpike to not be mergeable")
	}
}
