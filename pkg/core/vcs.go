package core

import "time"

// UpdateSummary describes the result of a fetch.
type UpdateSummary struct {
	UpToDate bool
	OldHead  string
	NewHead  string
}

// MergeStrategy names how a merge-or-rebase reconciled the branches.
type MergeStrategy string

// Reconciliation strategies reported in MergeSummary.
const (
	MergeUpToDate    MergeStrategy = "up-to-date"
	MergeFastForward MergeStrategy = "fast-forward"
	MergeCommit      MergeStrategy = "merge-commit"
)

// MergeSummary describes the result of a merge-or-rebase.
type MergeSummary struct {
	Strategy MergeStrategy
	Head     string
	Files    []string
}

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// RepoStatus is a point-in-time view of a working copy.
type RepoStatus struct {
	Head       string `json:"head"`
	Upstream   string `json:"upstream"`
	Dirty      bool   `json:"dirty"`
	NeedsPush  bool   `json:"needs_push"`
	NeedsMerge bool   `json:"needs_merge"`
}
