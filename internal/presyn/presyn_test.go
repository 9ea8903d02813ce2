package presyn

import (
	"testing"

	"snngen/internal/cgen"
	"snngen/internal/codestream"
	"snngen/internal/model"
	"snngen/internal/subst"
)

func synapseGroup(span model.SpanType, psmMerged bool) *model.SynapseGroup {
	src := model.NeuronGroupSpec{Name: "Pre", NumNeurons: 10}
	trg := model.NeuronGroupSpec{Name: "Post", NumNeurons: 20}
	sgSpec := model.SynapseGroupSpec{
		Name: "Syn", Src: "Pre", Trg: "Post",
		MatrixType: model.MatrixDense | model.MatrixIndividualPSM,
		SpanType:   span,
		PSMMerged:  psmMerged,
	}
	v, err := model.NewView([]model.NeuronGroupSpec{src, trg}, []model.SynapseGroupSpec{sgSpec}, model.Float32, model.Float32)
	if err != nil {
		panic(err)
	}
	return v.SynapseGroups()[0]
}

func TestRegistryResolvesPostSpanForPostsynapticSpan(t *testing.T) {
	r := NewRegistry()
	sg := synapseGroup(model.SpanPostsynaptic, false)
	s, err := r.Resolve(sg)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "PostSpan" {
		t.Fatalf("got %s, want PostSpan", s.Name())
	}
}

func TestRegistryFallsBackToPreSpanForPresynapticSpan(t *testing.T) {
	r := NewRegistry()
	sg := synapseGroup(model.SpanPresynaptic, false)
	s, err := r.Resolve(sg)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "PreSpan" {
		t.Fatalf("got %s, want PreSpan", s.Name())
	}
}

func TestRegisterTakesPriorityOverBuiltins(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeStrategy{name: "Custom"})
	sg := synapseGroup(model.SpanPostsynaptic, false)
	s, err := r.Resolve(sg)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "Custom" {
		t.Fatalf("got %s, want Custom (most recently registered wins)", s.Name())
	}
}

func TestPostSpanAccumulationTargetDependsOnMergedPSM(t *testing.T) {
	var ps PostSpan
	sgUnmerged := synapseGroup(model.SpanPostsynaptic, false)
	sgMerged := synapseGroup(model.SpanPostsynaptic, true)

	if !ps.ShouldAccumulateInRegister(sgUnmerged) {
		t.Fatal("expected register accumulation for unmerged PSM")
	}
	if ps.ShouldAccumulateInSharedMemory(sgUnmerged) {
		t.Fatal("did not expect shared memory accumulation for unmerged PSM")
	}
	if ps.ShouldAccumulateInRegister(sgMerged) {
		t.Fatal("did not expect register accumulation for merged PSM")
	}
	if !ps.ShouldAccumulateInSharedMemory(sgMerged) {
		t.Fatal("expected shared memory accumulation for merged PSM")
	}
}

func TestEmitAccumulationTargetUsesAtomicOnlyWhenMerged(t *testing.T) {
	inSyn := cgen.Vb("group->inSyn[id]")
	val := cgen.Vb("linSyn")

	got := string(EmitAccumulationTarget(inSyn, val, false, "float").Append(nil))
	if got != "group->inSyn[id] += linSyn" {
		t.Fatalf("got %q", got)
	}

	got = string(EmitAccumulationTarget(inSyn, val, true, "float").Append(nil))
	want := "atomicAddFloat(&group->inSyn[id], linSyn)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNoCompatibleStrategyError(t *testing.T) {
	r := &Registry{}
	sg := synapseGroup(model.SpanPresynaptic, false)
	_, err := r.Resolve(sg)
	if _, ok := err.(*NoCompatibleStrategyError); !ok {
		t.Fatalf("expected *NoCompatibleStrategyError, got %v", err)
	}
}

type fakeStrategy struct{ name string }

func (f fakeStrategy) Name() string                                   { return f.name }
func (f fakeStrategy) IsCompatible(sg *model.SynapseGroup) bool       { return true }
func (f fakeStrategy) GetNumThreads(sg *model.SynapseGroup) int       { return 0 }
func (f fakeStrategy) GetSynapticMatrixRowStride(sg *model.SynapseGroup) int { return 0 }
func (f fakeStrategy) ShouldAccumulateInRegister(sg *model.SynapseGroup) bool { return false }
func (f fakeStrategy) ShouldAccumulateInSharedMemory(sg *model.SynapseGroup) bool { return false }
func (f fakeStrategy) EmitCode(cs *codestream.Stream, sg *model.SynapseGroup, subs *subst.Frame, trueSpike bool, threshHandler, simHandler CodeHandler) error {
	return nil
}
func (f fakeStrategy) AddToInSynTemplate(sg *model.SynapseGroup, precision string) string { return "" }
