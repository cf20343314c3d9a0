package transfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhasesOrder(t *testing.T) {
	// The pipeline depends on this exact order: refs before objects,
	// packed refs before loose ones.
	require.Equal(t, []Phase{
		PhaseAuxiliary,
		PhasePackedRefs,
		PhaseLooseRefsAndLogs,
		PhaseObjectsAndPacks,
	}, Phases)
}

func TestPhaseCompress(t *testing.T) {
	for _, phase := range Phases {
		require.Equal(t, phase != PhaseObjectsAndPacks, phase.Compress(), "phase %s", phase)
	}
}

func TestPhaseRulesCoverAllShapes(t *testing.T) {
	globs := []string{
		"/?*/?*/?*/?*/?*.git",    // plain
		"/?*/nw/?*/?*/?*/?*.git", // networked group
		"/?*/?*/?*/gist/?*",      // gist
	}

	for _, phase := range Phases {
		rules := phase.Rules()
		require.NotEmpty(t, rules)

		// The one template is expanded for every repository shape.
		for _, glob := range globs {
			found := false
			for _, rule := range rules {
				if strings.HasPrefix(rule.Pattern, glob) {
					found = true
					break
				}
			}
			require.True(t, found, "phase %s has no rule for %s", phase, glob)
		}
	}
}

func TestPhaseRules(t *testing.T) {
	t.Run("auxiliary excludes data owned by later phases", func(t *testing.T) {
		for _, rule := range PhaseAuxiliary.Rules() {
			require.False(t, rule.Include)
		}
	})

	t.Run("packed-refs transfers only packed-refs files", func(t *testing.T) {
		rules := PhasePackedRefs.Rules()
		require.Equal(t, Exclude("*"), rules[len(rules)-1])
		for _, rule := range rules[:len(rules)-1] {
			require.True(t, rule.Include)
			if rule.Pattern != "*/" {
				require.True(t, strings.HasSuffix(rule.Pattern, "/packed-refs"), "pattern %q", rule.Pattern)
			}
		}
	})

	t.Run("objects excludes in-progress temporary files first", func(t *testing.T) {
		rules := PhaseObjectsAndPacks.Rules()

		// First match wins, so for every shape the tmp excludes must
		// precede that shape's objects include.
		includeSeen := make(map[string]bool)
		for _, rule := range rules {
			if rule.Pattern == "*/" || rule.Pattern == "*" {
				continue
			}
			glob := strings.SplitN(rule.Pattern, "/objects", 2)[0]
			if rule.Include {
				includeSeen[glob] = true
				continue
			}
			require.Contains(t, rule.Pattern, "tmp_")
			require.False(t, includeSeen[glob], "tmp exclude %q after objects include", rule.Pattern)
		}
		require.Len(t, includeSeen, 3)
	})
}
