package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace against a golden
// file at testdata/golden/{scenario.Name}.golden. The trace is rendered as
// one feed document per line, in commit order, using the deterministic wire
// encoding, so the golden file doubles as a readable change-feed transcript.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Outcome, error) {
	t.Helper()

	out, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	rendered, err := renderTrace(out)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, rendered)

	return out, nil
}

func renderTrace(out *Outcome) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range out.Trace {
		line, err := doc.Marshal()
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
