package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/garage-basics.yaml")
	require.NoError(t, err)

	assert.Equal(t, "garage-basics", s.Name)
	assert.Equal(t, "cars", s.Domain)
	require.Len(t, s.Transactions, 2)
	assert.Equal(t, "seed", s.Transactions[0].Name)
	require.Len(t, s.Transactions[0].Ops, 3)
	assert.Equal(t, "create", s.Transactions[0].Ops[0].Op)
	assert.NotEmpty(t, s.Assertions)
}

func TestLoadScenario_DefaultsDomain(t *testing.T) {
	path := writeScenario(t, "minimal.yaml", `
name: minimal
transactions:
  - ops:
      - {op: create, as: obj, kind: plain}
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "test", s.Domain)
}

func TestLoadScenario_RequiresName(t *testing.T) {
	path := writeScenario(t, "anon.yaml", `
transactions:
  - ops:
      - {op: create, as: obj, kind: plain}
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_RequiresTransactions(t *testing.T) {
	path := writeScenario(t, "empty.yaml", "name: empty\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one transaction")
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, "typo.yaml", `
name: typo
transactons:
  - ops: []
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenarios_SortedByFileName(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 3)

	assert.Equal(t, "array-lifecycle", scenarios[0].Name)
	assert.Equal(t, "garage-basics", scenarios[1].Name)
	assert.Equal(t, "rollback-leaves-no-trace", scenarios[2].Name)
}
