// Package transfer implements the repository transfer engine: typed
// delta-sync tasks, the phased per-node pipeline, the fan-out across
// nodes, host-wide special directory sync, and backup verification.
package transfer

import "fmt"

// Rule is one entry of an ordered, first-match-wins include/exclude
// pattern list.
type Rule struct {
	Include bool
	Pattern string
}

// Include builds an include rule.
func Include(pattern string) Rule { return Rule{Include: true, Pattern: pattern} }

// Exclude builds an exclude rule.
func Exclude(pattern string) Rule { return Rule{Include: false, Pattern: pattern} }

func (r Rule) String() string {
	if r.Include {
		return "+ " + r.Pattern
	}
	return "- " + r.Pattern
}

// Task describes one transfer tool invocation. Tasks are plain data so
// their construction can be tested without executing anything.
type Task struct {
	// Source and Dest are rsync path specs; either side may be remote.
	Source string
	Dest   string

	// RemoteShell is the transport command for remote path specs.
	RemoteShell string

	// FilesFrom limits the transfer to the newline-delimited paths in
	// the given local file, relative to Source.
	FilesFrom string

	// Rules is the ordered filter list applied to candidate paths.
	Rules []Rule

	// Compress enables wire compression. Off for object data, which is
	// already compressed.
	Compress bool

	// Mirror deletes destination files absent from the source. Backup
	// transfers are additive; restore transfers mirror.
	Mirror bool

	// LinkDest, when set, hard-links unchanged files from a previous
	// snapshot tree instead of re-transferring them.
	LinkDest string
}

// Args renders the task as an rsync argument list.
func (t Task) Args() []string {
	args := []string{"-a", "-r"}

	if t.Compress {
		args = append(args, "-z")
	}
	if t.Mirror {
		args = append(args, "--delete")
	}
	if t.LinkDest != "" {
		args = append(args, "--link-dest="+t.LinkDest)
	}
	if t.FilesFrom != "" {
		args = append(args, "--files-from="+t.FilesFrom)
	}
	if t.RemoteShell != "" {
		args = append(args, "--rsh="+t.RemoteShell)
	}
	for _, rule := range t.Rules {
		args = append(args, fmt.Sprintf("--filter=%s", rule))
	}

	return append(args, t.Source, t.Dest)
}
