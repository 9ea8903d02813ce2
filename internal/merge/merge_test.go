package merge

import "testing"

type fakeGroup struct {
	Name string
	Kind int
}

func TestMergePopsFromBackAndChecksArchetypeOnly(t *testing.T) {
	groups := []fakeGroup{
		{"a", 0}, {"b", 1}, {"c", 0}, {"d", 1}, {"e", 0},
	}
	canMerge := func(a, b fakeGroup) bool { return a.Kind == b.Kind }

	merged := Merge(groups, NeuronUpdate, func(g fakeGroup) string { return g.Name }, canMerge)
	if len(merged) != 2 {
		t.Fatalf("got %d merged groups, want 2", len(merged))
	}

	wantNames := func(m *MergedGroup[fakeGroup]) []string {
		var names []string
		for _, g := range m.Members {
			names = append(names, g.Name)
		}
		return names
	}

	got0 := wantNames(merged[0])
	want0 := []string{"e", "c", "a"}
	if !equal(got0, want0) {
		t.Fatalf("group 0: got %v, want %v", got0, want0)
	}

	got1 := wantNames(merged[1])
	want1 := []string{"d", "b"}
	if !equal(got1, want1) {
		t.Fatalf("group 1: got %v, want %v", got1, want1)
	}

	if merged[0].Archetype().Name != "e" {
		t.Fatalf("archetype of group 0 = %q, want %q", merged[0].Archetype().Name, "e")
	}
	if merged[0].Role != NeuronUpdate {
		t.Fatalf("role = %v, want %v", merged[0].Role, NeuronUpdate)
	}
}

func TestMergeSingletonGroupsWhenNothingMerges(t *testing.T) {
	groups := []fakeGroup{{"a", 0}, {"b", 1}, {"c", 2}}
	canMerge := func(a, b fakeGroup) bool { return false }
	merged := Merge(groups, PresynapticUpdate, func(g fakeGroup) string { return g.Name }, canMerge)
	if len(merged) != 3 {
		t.Fatalf("got %d merged groups, want 3", len(merged))
	}
	for _, m := range merged {
		if len(m.Members) != 1 {
			t.Fatalf("expected singleton group, got %d members", len(m.Members))
		}
	}
}

func TestMergeEmptyInput(t *testing.T) {
	merged := Merge([]fakeGroup(nil), NeuronInit, func(g fakeGroup) string { return g.Name }, func(a, b fakeGroup) bool { return true })
	if len(merged) != 0 {
		t.Fatalf("got %d merged groups, want 0", len(merged))
	}
}

func TestTotalPaddedSizeAndStartIDsCoverAllMembers(t *testing.T) {
	groups := []fakeGroup{{"a", 0}, {"b", 0}, {"c", 0}}
	merged := Merge(groups, NeuronUpdate, func(g fakeGroup) string { return g.Name }, func(a, b fakeGroup) bool { return true })
	if len(merged) != 1 {
		t.Fatalf("got %d merged groups, want 1", len(merged))
	}
	padded := map[string]int{"a": 32, "b": 64, "c": 96}
	paddedSize := func(g fakeGroup) int { return padded[g.Name] }

	total := TotalPaddedSize(merged[0], paddedSize)
	if total != 32+64+96 {
		t.Fatalf("got total %d, want %d", total, 32+64+96)
	}

	ids := StartIDs(merged[0], paddedSize)
	if len(ids) != len(merged[0].Members)+1 {
		t.Fatalf("got %d start ids, want %d", len(ids), len(merged[0].Members)+1)
	}
	if ids[0] != 0 {
		t.Fatalf("first start id = %d, want 0", ids[0])
	}
	if ids[len(ids)-1] != total {
		t.Fatalf("sentinel start id = %d, want %d", ids[len(ids)-1], total)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("start ids not strictly increasing at %d: %v", i, ids)
		}
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
