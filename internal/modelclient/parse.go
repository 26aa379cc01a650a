// File: internal/modelclient/parse.go
// Description: Pure normalization of provider text into canonical Decisions.
// Each grammar is independently testable without touching the loop.
package modelclient

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

// jsonBlockRegex extracts a JSON payload from a markdown code fence.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseDecision normalizes a raw model response into a Decision. It accepts
// the JSON grounding schema (optionally fenced, single object or array) and
// the UI-TARS action-line grammar. Anything else is a malformed inference.
func ParseDecision(raw string) (schemas.Decision, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return schemas.Decision{}, fmt.Errorf("%w: empty response", schemas.ErrInferenceMalformed)
	}

	if payload, ok := extractJSON(text); ok {
		d, err := parseGroundingJSON(payload)
		if err != nil {
			return schemas.Decision{}, err
		}
		return d, d.Validate()
	}

	if d, ok, err := parseActionLine(text); ok {
		if err != nil {
			return schemas.Decision{}, err
		}
		return d, d.Validate()
	}

	return schemas.Decision{}, fmt.Errorf("%w: no decision found in %q",
		schemas.ErrInferenceMalformed, truncate(text, 200))
}

// extractJSON pulls a JSON object or array out of the response, handling
// markdown fences and surrounding prose.
func extractJSON(text string) (string, bool) {
	if m := jsonBlockRegex.FindStringSubmatch(text); len(m) > 1 {
		text = strings.TrimSpace(m[1])
	}
	for _, pair := range [2][2]string{{"{", "}"}, {"[", "]"}} {
		first := strings.Index(text, pair[0])
		last := strings.LastIndex(text, pair[1])
		if first != -1 && last > first {
			return text[first : last+1], true
		}
	}
	return "", false
}

// groundingAction is the provider-facing JSON schema: an action name, an
// optional value and an optional position.
type groundingAction struct {
	Action   string      `json:"action"`
	Value    interface{} `json:"value"`
	Position interface{} `json:"position"`
}

func parseGroundingJSON(payload string) (schemas.Decision, error) {
	var actions []groundingAction
	if strings.HasPrefix(payload, "{") {
		var one groundingAction
		if err := json.UnmarshalFromString(payload, &one); err != nil {
			return schemas.Decision{}, fmt.Errorf("%w: %v", schemas.ErrInferenceMalformed, err)
		}
		actions = []groundingAction{one}
	} else {
		if err := json.UnmarshalFromString(payload, &actions); err != nil {
			return schemas.Decision{}, fmt.Errorf("%w: %v", schemas.ErrInferenceMalformed, err)
		}
	}
	if len(actions) == 0 {
		return schemas.Decision{}, fmt.Errorf("%w: empty action list", schemas.ErrInferenceMalformed)
	}
	// Providers occasionally emit multi-action plans; the loop executes one
	// verified action per screenshot, so only the first is taken.
	return convertGroundingAction(actions[0])
}

func convertGroundingAction(g groundingAction) (schemas.Decision, error) {
	name := strings.ToUpper(strings.TrimSpace(g.Action))
	switch name {
	case "CLICK", "TAP", "PRESS":
		pt, normalized, err := onePoint(g.Position)
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionClick, Point: pt, Normalized: normalized}, nil

	case "SWIPE":
		start, end, normalized, err := twoPoints(g.Position)
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionDrag, Point: start, End: end, Normalized: normalized}, nil

	case "INPUT", "ANSWER":
		text, _ := g.Value.(string)
		return schemas.Decision{Kind: schemas.DecisionType, Text: text}, nil

	case "ENTER":
		return schemas.Decision{Kind: schemas.DecisionKeyCombo, Keys: []string{"enter"}}, nil

	case "ESC", "ESCAPE":
		return schemas.Decision{Kind: schemas.DecisionKeyCombo, Keys: []string{"esc"}}, nil

	case "HOTKEY":
		keys, err := hotkeyList(g.Value)
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionKeyCombo, Keys: keys}, nil

	case "SCROLL":
		return convertScroll(g)

	case "WAIT":
		return schemas.Decision{Kind: schemas.DecisionWait}, nil

	case "STOP", "DONE", "FINISHED":
		return schemas.Decision{Kind: schemas.DecisionDone}, nil

	case "REPLAN":
		reason, _ := g.Value.(string)
		return schemas.Decision{Kind: schemas.DecisionReplan, Text: reason}, nil

	case "PLAN", "NEXT":
		sub, _ := g.Value.(string)
		return schemas.Decision{Kind: schemas.DecisionPlan, Text: sub}, nil

	default:
		return schemas.Decision{}, fmt.Errorf("%w: unsupported action %q",
			schemas.ErrInferenceMalformed, g.Action)
	}
}

func convertScroll(g groundingAction) (schemas.Decision, error) {
	direction := ""
	amount := 10

	switch v := g.Value.(type) {
	case string:
		direction = v
	case map[string]interface{}:
		direction, _ = v["direction"].(string)
		if a, ok := v["amount"].(float64); ok && a > 0 {
			amount = int(a)
		}
	case []interface{}:
		if len(v) > 0 {
			direction, _ = v[0].(string)
		}
		if len(v) > 1 {
			if a, ok := v[1].(float64); ok && a > 0 {
				amount = int(a)
			}
		}
	}

	var delta schemas.ScrollDelta
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		delta.DY = -amount
	case "down":
		delta.DY = amount
	case "left":
		delta.DX = -amount
	case "right":
		delta.DX = amount
	default:
		return schemas.Decision{}, fmt.Errorf("%w: scroll direction %q",
			schemas.ErrInferenceMalformed, direction)
	}

	d := schemas.Decision{Kind: schemas.DecisionScroll, Delta: delta}
	if g.Position != nil {
		pt, normalized, err := onePoint(g.Position)
		if err != nil {
			return schemas.Decision{}, err
		}
		d.Point = pt
		d.Normalized = normalized
	}
	return d, nil
}

// onePoint decodes a [x, y] position. Coordinates that all fit in [0,1] are
// treated as normalized fractions of the image, matching how grounding
// models trained on normalized boxes answer.
func onePoint(position interface{}) (*schemas.Point, bool, error) {
	raw, ok := position.([]interface{})
	if !ok || len(raw) != 2 {
		return nil, false, fmt.Errorf("%w: invalid position payload %v",
			schemas.ErrInferenceMalformed, position)
	}
	x, okX := toFloat(raw[0])
	y, okY := toFloat(raw[1])
	if !okX || !okY {
		return nil, false, fmt.Errorf("%w: position values must be numeric: %v",
			schemas.ErrInferenceMalformed, position)
	}
	normalized := x >= 0 && x <= 1 && y >= 0 && y <= 1
	return &schemas.Point{X: x, Y: y}, normalized, nil
}

// twoPoints decodes [[x1,y1],[x2,y2]], the swipe/drag position form.
func twoPoints(position interface{}) (*schemas.Point, *schemas.Point, bool, error) {
	raw, ok := position.([]interface{})
	if !ok || len(raw) != 2 {
		return nil, nil, false, fmt.Errorf("%w: drag requires start and end positions",
			schemas.ErrInferenceMalformed)
	}
	start, n1, err := onePoint(raw[0])
	if err != nil {
		return nil, nil, false, err
	}
	end, n2, err := onePoint(raw[1])
	if err != nil {
		return nil, nil, false, err
	}
	return start, end, n1 && n2, nil
}

func hotkeyList(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case string:
		var keys []string
		for _, part := range strings.Split(v, "+") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, strings.ToLower(part))
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: empty hotkey value", schemas.ErrInferenceMalformed)
		}
		return keys, nil
	case []interface{}:
		var keys []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					keys = append(keys, strings.ToLower(s))
				}
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: empty hotkey list", schemas.ErrInferenceMalformed)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: hotkey value must be a string or list",
			schemas.ErrInferenceMalformed)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
