package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the transient result of a synchronizer operation.
type Outcome struct {
	Node      NodePath  `json:"-"`
	Operation Operation `json:"operation"`
	Success   bool      `json:"success"`
	Summary   string    `json:"summary"`
	Code      ErrorCode `json:"code,omitempty"`
	Files     []string  `json:"files,omitempty"`
	Children  []Outcome `json:"children,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(node NodePath, op Operation, format string, args ...interface{}) Outcome {
	return Outcome{
		Node:      node,
		Operation: op,
		Success:   true,
		Summary:   fmt.Sprintf(format, args...),
	}
}

// Failed builds a failed outcome from err. The summary is prefixed with msg
// when msg is not empty.
func Failed(node NodePath, op Operation, msg string, err error) Outcome {
	summary := msg
	if err != nil {
		if summary != "" {
			summary += ": "
		}
		summary += err.Error()
	}
	return Outcome{
		Node:      node,
		Operation: op,
		Success:   false,
		Summary:   summary,
		Code:      CodeOf(err),
		Files:     ConflictFiles(err),
	}
}

// Aggregate combines per-child outcomes. The aggregate succeeds iff every
// child succeeded; an empty child list succeeds with "nothing to do".
func Aggregate(node NodePath, op Operation, children []Outcome) Outcome {
	out := Outcome{
		Node:      node,
		Operation: op,
		Success:   true,
		Children:  children,
	}
	if len(children) == 0 {
		out.Summary = "nothing to do: no enabled components"
		return out
	}

	failed := out.Failed()
	if len(failed) == 0 {
		out.Summary = fmt.Sprintf("%s succeeded for %d of %d components", op, len(children), len(children))
		return out
	}

	out.Success = false
	reasons := make([]string, 0, len(failed))
	for _, f := range failed {
		reasons = append(reasons, fmt.Sprintf("%s (%s)", f.Node, f.Summary))
	}
	out.Summary = fmt.Sprintf("%s failed for %d of %d components: %s",
		op, len(failed), len(children), strings.Join(reasons, "; "))
	if len(failed) == len(children) {
		out.Code = failed[0].Code
	}
	return out
}

// SuccessCount returns how many children succeeded.
func (o Outcome) SuccessCount() int {
	n := 0
	for _, c := range o.Children {
		if c.Success {
			n++
		}
	}
	return n
}

// FailureCount returns how many children failed.
func (o Outcome) FailureCount() int {
	return len(o.Children) - o.SuccessCount()
}

// Failed returns the failed children in order.
func (o Outcome) Failed() []Outcome {
	var out []Outcome
	for _, c := range o.Children {
		if !c.Success {
			out = append(out, c)
		}
	}
	return out
}

// MarshalJSON adds the node path to the JSON form.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(struct {
		Node string `json:"node"`
		plain
	}{Node: o.Node.String(), plain: plain(o)})
}
