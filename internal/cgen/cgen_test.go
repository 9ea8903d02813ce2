package cgen

import "testing"

func render(g Gen) string {
	return string(g.Append(nil))
}

func TestCallAndElem(t *testing.T) {
	got := render(Call{Vb("foo"), CommaSpaced{Vb("a"), Elem{Vb("b"), IntLit(3)}}})
	want := "foo(a, b[3])"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestIfElseChain(t *testing.T) {
	g := If{
		Cond: CmpE(Vb("x"), Zero),
		Then: Stmts{Return{Zero}},
		Else: Stmts{If{
			Cond: CmpG(Vb("x"), Zero),
			Then: Stmts{Return{One}},
		}},
	}
	got := render(g)
	want := "if (x == 0) {\nreturn 0;\n} else if (x > 0) {\nreturn 1;\n}"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFuncDefCuda(t *testing.T) {
	g := FuncDef{
		Qualifier:  GlobalCuda,
		ReturnType: Void,
		Name:       "updateNeuronsKernel",
		Params:     CommaSpaced{Param{RestrictPtrFloat, Vb("V")}},
		Body:       Stmts{Assign{Elem{Vb("V"), ThreadIdxX}, Zero}},
	}
	got := render(g)
	want := "__global__ void updateNeuronsKernel(float* restrict V) {\nV[threadIdx.x] = 0;\n}\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStructDef(t *testing.T) {
	g := StructDef{
		Name:   "MergedNeuronUpdateGroup0",
		Fields: Stmts{Field{PtrFloat, Vb("V")}, Field{Int, Vb("numNeurons")}},
	}
	got := render(g)
	want := "struct MergedNeuronUpdateGroup0 {\nfloat* V;\nint numNeurons;\n};\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCommentBlankLine(t *testing.T) {
	got := render(Comment{"synapse update kernel", "", "generated"})
	want := "// synapse update kernel\n//\n// generated\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
