//go:build property
// +build property

package attestation

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

func verdictFromInt(n int) Verdict {
	switch n % 3 {
	case 0:
		return VerdictPass
	case 1:
		return VerdictWarn
	default:
		return VerdictFail
	}
}

func TestConsensusMonotonicity_FailWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("adding a fail source never shifts fail-wins consensus away from fail", prop.ForAll(
		func(n int) bool {
			count := 1 + n%10
			events := make([]eventlog.Event, count)
			for i := 0; i < count; i++ {
				events[i] = attEvent(fmt.Sprintf("node%d", i), "check", verdictFromInt(n+i))
			}
			policy := config.VerifierPolicy{Mode: "open", ConflictPolicy: "fail-wins"}
			before := NewAggregator(events).Aggregate("r/x", "1.0.0", "check", policy)

			events = append(events, attEvent(fmt.Sprintf("node%d", count), "check", VerdictFail))
			after := NewAggregator(events).Aggregate("r/x", "1.0.0", "check", policy)

			if before.Consensus == ConsensusFail {
				return after.Consensus == ConsensusFail
			}
			return after.Consensus == ConsensusFail
		},
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}
