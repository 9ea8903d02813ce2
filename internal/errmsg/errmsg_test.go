package errmsg

import "testing"

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&InputValidationError{Detail: "duplicate name"}, "input validation: duplicate name"},
		{&MergeCompatibilityError{MergedGroupRole: "neuron-update", MergedGroupIndex: 2, GroupName: "Pop0"},
			`assertion failed: group "Pop0" is not compatible with merged neuron-update group 2`},
		{&UnresolvedSubstitutionError{GroupName: "Pop0", CodeBlock: "resetCode", Token: "$(foo)"},
			`unreplaced variable "$(foo)" in Pop0 : resetCode`},
		{&UnbalancedScopeError{Want: 1, Got: 2}, "unbalanced scope: close(2) does not match most recent open(1)"},
		{&NotYetImplementedError{What: "extra-global-param push"}, "not yet implemented: extra-global-param push"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(3200, 48000)
	want := "3,200 threads, 48 kB"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
