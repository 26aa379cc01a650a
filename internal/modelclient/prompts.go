// File: internal/modelclient/prompts.go
package modelclient

import (
	"fmt"
	"strings"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

// System prompts per role. Models answer with a single JSON object in the
// grounding schema; coordinates are pixels in the screenshot they were shown.
const (
	unifiedSystemPrompt = `You are a GUI agent controlling a desktop through a screenshot.
You are given a task, your prior actions with their outcomes, and the current screenshot.
Decide the single next action and respond with one JSON object, nothing else:
{"action": "<ACTION>", "value": <value or null>, "position": [x, y]}

Actions:
CLICK     - left click at "position"
SWIPE     - drag; "position" is [[x1,y1],[x2,y2]]
INPUT     - type "value" into the focused element
ENTER     - press the Enter key
ESC       - press the Escape key
HOTKEY    - press the key combination in "value", e.g. "ctrl+s"
SCROLL    - scroll; "value" is {"direction": "up|down|left|right", "amount": n}, "position" is the anchor
WAIT      - wait for the screen to settle, then look again
STOP      - the task is complete
REPLAN    - the current approach is failing; "value" explains why

"position" is in pixels of the screenshot you were shown.`

	plannerSystemPrompt = `You are the planning half of a desktop GUI agent. You see the task, the
history so far and the current screenshot, but you never output pixel
coordinates. Respond with one JSON object, nothing else:
{"action": "PLAN", "value": "<one concrete UI sub-goal for the grounding model>"}
or {"action": "STOP"} when the task is complete,
or {"action": "REPLAN", "value": "<why the approach must change>"}.`

	actorSystemPrompt = `You are a GUI grounding agent. You are given a sub-goal and a screenshot.
Perform the next action to achieve the sub-goal.

## Output Format
` + "```" + `Action: ...` + "```" + `

## Action Space
click(start_box='<|box_start|>(x1,y1)<|box_end|>')
hotkey(key='')
type(content='')
scroll(start_box='<|box_start|>(x1,y1)<|box_end|>', direction='down or up or right or left')
wait()
finished()
call_user()

## Note
- Do not generate any other text.`
)

// systemPromptFor returns the grounding prompt for a role.
func systemPromptFor(role schemas.Role) string {
	switch role {
	case schemas.RolePlanner:
		return plannerSystemPrompt
	case schemas.RoleActor:
		return actorSystemPrompt
	default:
		return unifiedSystemPrompt
	}
}

// renderUserPrompt folds the instruction and the bounded history window into
// the text part of a request. History entries are compact one-liners so the
// rolling window, not prose, caps request size.
func renderUserPrompt(req schemas.InferRequest) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(req.Instruction)
	if len(req.History) > 0 {
		b.WriteString("\n\nPrior steps (oldest first):\n")
		for i, e := range req.History {
			fmt.Fprintf(&b, "%d. %s", i+1, e.Decision.String())
			switch {
			case e.Err != "":
				fmt.Fprintf(&b, " -> failed: %s", e.Err)
			case e.Outcome != nil && !e.Outcome.OK:
				fmt.Fprintf(&b, " -> failed: %s", e.Outcome.Reason)
			default:
				b.WriteString(" -> ok")
			}
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\nThe attached screenshot is %dx%d pixels.", req.ImageWidth, req.ImageHeight)
	return b.String()
}
