package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			out, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, out.Pass, strings.Join(out.Errors, "; "))
		})
	}
}

func TestRun_UnexpectedCommitFailsScenario(t *testing.T) {
	s := &Scenario{
		Name:   "commits-anyway",
		Domain: "test",
		Transactions: []TxStep{
			{
				Fail: true,
				Ops: []OpStep{
					{Op: "create", As: "obj", Kind: "plain"},
				},
			},
		},
	}

	out, err := Run(s)
	require.NoError(t, err)
	assert.False(t, out.Pass)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "expected failure")
}

func TestRun_UnexpectedFailureFailsScenario(t *testing.T) {
	s := &Scenario{
		Name:   "targets-nothing",
		Domain: "test",
		Transactions: []TxStep{
			{
				Ops: []OpStep{
					{Op: "set", Target: "ghost", Prop: "Name", Value: "x"},
				},
			},
		},
	}

	out, err := Run(s)
	require.NoError(t, err)
	assert.False(t, out.Pass)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], `unknown label "ghost"`)
	assert.Empty(t, out.Trace)
}

func TestRun_ExpectedFailureLeavesNoTrace(t *testing.T) {
	s := &Scenario{
		Name:   "expected-fault",
		Domain: "test",
		Transactions: []TxStep{
			{
				Fail: true,
				Ops: []OpStep{
					{Op: "create", As: "list", Kind: "array"},
					{Op: "removeat", Target: "list", Index: 0},
				},
			},
		},
		Assertions: []Assertion{
			{Type: AssertSerial, Serial: 0},
			{Type: AssertObjects, Count: 0},
		},
	}

	out, err := Run(s)
	require.NoError(t, err)
	assert.True(t, out.Pass, strings.Join(out.Errors, "; "))
	assert.Empty(t, out.Trace)
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	s := &Scenario{
		Name:   "wrong-expectation",
		Domain: "test",
		Transactions: []TxStep{
			{
				Ops: []OpStep{
					{Op: "create", As: "obj", Kind: "plain"},
					{Op: "root", Target: "obj"},
					{Op: "set", Target: "obj", Prop: "Name", Value: "actual"},
				},
			},
		},
		Assertions: []Assertion{
			{Type: AssertProperty, Target: "obj", Prop: "Name", Value: "expected"},
		},
	}

	out, err := Run(s)
	require.NoError(t, err)
	assert.False(t, out.Pass)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "obj.Name")
}

func TestRun_TypeMismatchedOpFails(t *testing.T) {
	s := &Scenario{
		Name:   "append-to-plain",
		Domain: "test",
		Transactions: []TxStep{
			{
				Fail: true,
				Ops: []OpStep{
					{Op: "create", As: "obj", Kind: "plain"},
					{Op: "append", Target: "obj", Value: "x"},
				},
			},
		},
	}

	out, err := Run(s)
	require.NoError(t, err)
	assert.True(t, out.Pass, strings.Join(out.Errors, "; "))
}
