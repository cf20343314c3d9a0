package transfer

import "github.com/ghe-utils/reposync/internal/netpath"

// Phase is one pass of the per-node pipeline. Phases execute strictly
// in the order given by Phases: refs are captured before the final
// object set so that, with GC quiesced, every transferred ref has its
// target object present once the objects phase completes.
type Phase int

const (
	// PhaseAuxiliary transfers non-ref, non-object repository metadata.
	PhaseAuxiliary Phase = iota
	// PhasePackedRefs transfers the packed-refs file only.
	PhasePackedRefs
	// PhaseLooseRefsAndLogs transfers loose refs and reflogs. It runs
	// after packed-refs because loose refs take precedence over
	// equally named packed entries.
	PhaseLooseRefsAndLogs
	// PhaseObjectsAndPacks transfers object and pack storage,
	// excluding in-progress temporary files.
	PhaseObjectsAndPacks
)

// Phases is the mandatory execution order.
var Phases = []Phase{PhaseAuxiliary, PhasePackedRefs, PhaseLooseRefsAndLogs, PhaseObjectsAndPacks}

func (p Phase) String() string {
	switch p {
	case PhaseAuxiliary:
		return "auxiliary"
	case PhasePackedRefs:
		return "packed-refs"
	case PhaseLooseRefsAndLogs:
		return "loose-refs-and-logs"
	case PhaseObjectsAndPacks:
		return "objects-and-packs"
	}
	return "invalid"
}

// Compress reports whether the phase transfers with wire compression.
// Object data is already zlib-compressed, so compressing it again only
// burns CPU.
func (p Phase) Compress() bool {
	return p != PhaseObjectsAndPacks
}

// repoGlob returns the anchored glob matching the repository
// directories of one shape, relative to the repositories root.
func repoGlob(shape netpath.Shape) string {
	switch shape {
	case netpath.ShapePlain:
		return "/?*/?*/?*/?*/?*.git"
	case netpath.ShapeNetwork:
		return "/?*/nw/?*/?*/?*/?*.git"
	case netpath.ShapeGist:
		return "/?*/?*/?*/gist/?*"
	}
	panic("unknown repository shape")
}

// Rules expands the phase's single filter template across all
// repository shapes. The list is ordered and first-match-wins.
func (p Phase) Rules() []Rule {
	var rules []Rule

	switch p {
	case PhaseAuxiliary:
		// Everything except the data owned by later phases.
		for _, shape := range netpath.Shapes {
			glob := repoGlob(shape)
			rules = append(rules,
				Exclude(glob+"/objects/***"),
				Exclude(glob+"/refs/***"),
				Exclude(glob+"/packed-refs"),
				Exclude(glob+"/logs/***"),
			)
		}

	case PhasePackedRefs:
		for _, shape := range netpath.Shapes {
			rules = append(rules, Include(repoGlob(shape)+"/packed-refs"))
		}
		rules = append(rules, Include("*/"), Exclude("*"))

	case PhaseLooseRefsAndLogs:
		for _, shape := range netpath.Shapes {
			glob := repoGlob(shape)
			rules = append(rules,
				Include(glob+"/refs/***"),
				Include(glob+"/logs/***"),
			)
		}
		rules = append(rules, Include("*/"), Exclude("*"))

	case PhaseObjectsAndPacks:
		for _, shape := range netpath.Shapes {
			glob := repoGlob(shape)
			rules = append(rules,
				Exclude(glob+"/objects/tmp_*"),
				Exclude(glob+"/objects/pack/tmp_*"),
				Include(glob+"/objects/***"),
			)
		}
		rules = append(rules, Include("*/"), Exclude("*"))
	}

	return rules
}
