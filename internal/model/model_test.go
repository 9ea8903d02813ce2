package model

import "testing"

func lifModel() *NeuronModel {
	return &NeuronModel{
		Kind:   "LIF",
		Vars:   []Var{{Name: "V", Type: "scalar"}},
		Params: []string{"C", "TauM", "Vrest", "Vreset", "Vthresh"},
		Code: CodeBlocks{
			Sim:       "$(V)+=DT*($(Vrest)-$(V))/$(TauM);",
			Threshold: "$(V)>=$(Vthresh)",
			Reset:     "$(V)=$(Vreset);",
		},
	}
}

func TestNewViewBuildsGraph(t *testing.T) {
	nm := lifModel()
	v, err := NewView(
		[]NeuronGroupSpec{
			{Name: "Pre", NumNeurons: 10, Model: nm},
			{Name: "Post", NumNeurons: 20, Model: nm},
		},
		[]SynapseGroupSpec{
			{Name: "Pre_Post", Src: "Pre", Trg: "Post", MatrixType: MatrixDense},
		},
		Float32, Float32,
	)
	if err != nil {
		t.Fatalf("NewView failed: %v", err)
	}
	if len(v.NeuronGroups()) != 2 {
		t.Fatalf("expected 2 neuron groups, got %d", len(v.NeuronGroups()))
	}
	pre := v.NeuronGroups()[0]
	post := v.NeuronGroups()[1]
	if !v.HasPath(pre, post) {
		t.Fatal("expected a path from Pre to Post")
	}
	if v.HasPath(post, pre) {
		t.Fatal("did not expect a path from Post to Pre")
	}
	if len(pre.OutSyn()) != 1 || len(post.MergedInSyn()) != 1 {
		t.Fatal("synapse group not wired onto its endpoints")
	}
}

func TestNewViewRejectsDuplicateNames(t *testing.T) {
	nm := lifModel()
	_, err := NewView(
		[]NeuronGroupSpec{
			{Name: "A", NumNeurons: 1, Model: nm},
			{Name: "A", NumNeurons: 1, Model: nm},
		},
		nil, Float32, Float32,
	)
	if err == nil {
		t.Fatal("expected duplicate-name error")
	}
	if _, ok := err.(*DuplicateNameError); !ok {
		t.Fatalf("expected *DuplicateNameError, got %T", err)
	}
}

func TestNewViewRejectsZeroDelayFeedbackLoop(t *testing.T) {
	nm := lifModel()
	_, err := NewView(
		[]NeuronGroupSpec{
			{Name: "A", NumNeurons: 10, Model: nm},
			{Name: "B", NumNeurons: 10, Model: nm},
		},
		[]SynapseGroupSpec{
			{Name: "A_B", Src: "A", Trg: "B", MatrixType: MatrixDense},
			{Name: "B_A", Src: "B", Trg: "A", MatrixType: MatrixDense},
		},
		Float32, Float32,
	)
	if err == nil {
		t.Fatal("expected a zero-delay feedback loop error")
	}
	if _, ok := err.(*ZeroDelayFeedbackLoopError); !ok {
		t.Fatalf("expected *ZeroDelayFeedbackLoopError, got %T", err)
	}
}

func TestNewViewAllowsFeedbackLoopWithDelay(t *testing.T) {
	nm := lifModel()
	_, err := NewView(
		[]NeuronGroupSpec{
			{Name: "A", NumNeurons: 10, Model: nm},
			{Name: "B", NumNeurons: 10, Model: nm},
		},
		[]SynapseGroupSpec{
			{Name: "A_B", Src: "A", Trg: "B", MatrixType: MatrixDense},
			{Name: "B_A", Src: "B", Trg: "A", MatrixType: MatrixDense, DelaySteps: 1},
		},
		Float32, Float32,
	)
	if err != nil {
		t.Fatalf("unexpected error for a feedback loop with nonzero delay: %v", err)
	}
}

func TestNewViewRejectsUnknownEndpoint(t *testing.T) {
	nm := lifModel()
	_, err := NewView(
		[]NeuronGroupSpec{{Name: "A", NumNeurons: 1, Model: nm}},
		[]SynapseGroupSpec{{Name: "A_B", Src: "A", Trg: "B"}},
		Float32, Float32,
	)
	if err == nil {
		t.Fatal("expected unknown-group error")
	}
	if _, ok := err.(*UnknownGroupError); !ok {
		t.Fatalf("expected *UnknownGroupError, got %T", err)
	}
}
