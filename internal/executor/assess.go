package executor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	"github.com/Aman-CERP/agentcore/internal/task"
)

// decisionFenceRegex matches a fenced ```json block in the assessor
// model's response, the wire shape a decision is encoded in (spec.md §6's
// tool-output JSON convention extended to the assessment response;
// original_source's SelfAssessor is not present in the retrieved crate
// subset, so this wire format is this package's own grounded choice).
var decisionFenceRegex = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

// decisionWire is the JSON shape an assessment response's fenced block
// must contain, mirroring task.Decision's tagged variants.
type decisionWire struct {
	Action   string        `json:"action"`
	Result   string        `json:"result,omitempty"`
	Subtasks []subtaskWire `json:"subtasks,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Needs    []string      `json:"needs,omitempty"`
}

type subtaskWire struct {
	Description    string `json:"description"`
	Difficulty     int    `json:"difficulty"`
	VerifyCommand  string `json:"verify_command,omitempty"`
	VerifyExitCode int    `json:"verify_exit_code,omitempty"`
}

// ParseAssessment parses an assessor model's response text into a
// task.Decision. A strict-parse failure (no fenced json block, invalid
// JSON, or an unrecognized action) returns a RuntimeError{Parse} — the
// caller falls back to direct execution rather than re-assessing
// (spec.md §4.11, grounded on original_source's
// `assess_task_with_provider` mapping a parse error straight through
// rather than retrying the assessment).
func ParseAssessment(responseText string) (task.Decision, error) {
	m := decisionFenceRegex.FindStringSubmatch(responseText)
	if m == nil {
		return task.Decision{}, coreerr.ParseError("no json decision block found in assessment response", nil)
	}

	var wire decisionWire
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &wire); err != nil {
		return task.Decision{}, coreerr.ParseError("assessment response json could not be decoded", err)
	}

	switch strings.ToLower(wire.Action) {
	case "complete":
		return task.CompleteDecision(wire.Result), nil
	case "decompose":
		subtasks := make([]task.Subtask, 0, len(wire.Subtasks))
		for _, s := range wire.Subtasks {
			st := task.NewSubtask(s.Description, s.Difficulty)
			if s.VerifyCommand != "" {
				st = st.WithVerification(s.VerifyCommand, s.VerifyExitCode)
			}
			subtasks = append(subtasks, st)
		}
		mode := task.Sequential
		if strings.EqualFold(wire.Mode, string(task.Parallel)) {
			mode = task.Parallel
		}
		return task.DecomposeDecision(subtasks, mode), nil
	case "gather_context", "gathercontext":
		return task.GatherContextDecision(wire.Needs), nil
	default:
		return task.Decision{}, coreerr.ParseError("unrecognized assessment action: "+wire.Action, nil)
	}
}

// isSimpleRequest reports whether description is conversational enough to
// skip assessment entirely and execute directly (spec.md §4.14: "simple =
// conversational, detected by a short deterministic classifier"),
// grounded on original_source's classify_query_intent/is_simple_request.
func isSimpleRequest(description string) bool {
	lower := strings.ToLower(strings.TrimSpace(description))

	switch lower {
	case "hi", "hello", "hey", "thanks", "thank you":
		return true
	}
	if strings.HasPrefix(lower, "say hi") || strings.HasPrefix(lower, "say hello") {
		return true
	}

	if strings.Contains(lower, "remember") ||
		strings.Contains(lower, "what did i") ||
		strings.Contains(lower, "what was the") ||
		strings.Contains(lower, "recall") ||
		(strings.Contains(lower, "what") && strings.Contains(lower, "told you")) ||
		(strings.Contains(lower, "what") && strings.Contains(lower, "said")) {
		return true
	}

	if len(strings.Fields(description)) <= 3 {
		return true
	}

	return false
}
