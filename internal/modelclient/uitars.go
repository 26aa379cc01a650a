// File: internal/modelclient/uitars.go
// Description: Parser for the function-call action grammar some grounding
// models emit, e.g. click(start_box='(320,041)') or type(content='hello').
package modelclient

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

var (
	actionLineRegex = regexp.MustCompile(`(?m)^\s*(\w+)\((.*)\)\s*$`)
	argRegex        = regexp.MustCompile(`(\w+)\s*=\s*'((?:[^'\\]|\\.)*)'`)
	boxRegex        = regexp.MustCompile(`\(?\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\)?`)
)

// parseActionLine recognizes a single function-call action line anywhere in
// the response. The leading "Thought:"/"Action:" framing some models add is
// tolerated. Returns ok=false when the text contains no such line.
func parseActionLine(text string) (schemas.Decision, bool, error) {
	if idx := strings.Index(text, "Action:"); idx != -1 {
		text = text[idx+len("Action:"):]
	}
	m := actionLineRegex.FindStringSubmatch(text)
	if m == nil {
		return schemas.Decision{}, false, nil
	}
	name := strings.ToLower(m[1])
	args := parseArgs(m[2])

	d, err := convertActionCall(name, args)
	return d, true, err
}

func parseArgs(raw string) map[string]string {
	args := make(map[string]string)
	for _, m := range argRegex.FindAllStringSubmatch(raw, -1) {
		args[m[1]] = strings.ReplaceAll(m[2], `\'`, `'`)
	}
	return args
}

func convertActionCall(name string, args map[string]string) (schemas.Decision, error) {
	switch name {
	case "click", "left_single", "left_double", "press":
		pt, err := boxPoint(args)
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionClick, Point: pt}, nil

	case "drag", "select":
		start, err := boxPointNamed(args, "start_box")
		if err != nil {
			return schemas.Decision{}, err
		}
		end, err := boxPointNamed(args, "end_box")
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionDrag, Point: start, End: end}, nil

	case "type":
		return schemas.Decision{Kind: schemas.DecisionType, Text: args["content"]}, nil

	case "hotkey":
		keys, err := hotkeyList(args["key"])
		if err != nil {
			return schemas.Decision{}, err
		}
		return schemas.Decision{Kind: schemas.DecisionKeyCombo, Keys: keys}, nil

	case "scroll":
		var delta schemas.ScrollDelta
		switch strings.ToLower(args["direction"]) {
		case "up":
			delta.DY = -10
		case "down":
			delta.DY = 10
		case "left":
			delta.DX = -10
		case "right":
			delta.DX = 10
		default:
			return schemas.Decision{}, fmt.Errorf("%w: scroll direction %q",
				schemas.ErrInferenceMalformed, args["direction"])
		}
		d := schemas.Decision{Kind: schemas.DecisionScroll, Delta: delta}
		if _, ok := args["start_box"]; ok {
			pt, err := boxPoint(args)
			if err != nil {
				return schemas.Decision{}, err
			}
			d.Point = pt
		}
		return d, nil

	case "wait":
		return schemas.Decision{Kind: schemas.DecisionWait}, nil

	case "finished":
		return schemas.Decision{Kind: schemas.DecisionDone, Text: args["content"]}, nil

	case "call_user":
		return schemas.Decision{Kind: schemas.DecisionReplan, Text: args["content"]}, nil

	default:
		return schemas.Decision{}, fmt.Errorf("%w: unsupported action call %q",
			schemas.ErrInferenceMalformed, name)
	}
}

func boxPoint(args map[string]string) (*schemas.Point, error) {
	return boxPointNamed(args, "start_box")
}

// boxPointNamed decodes a '(x,y)' box argument into an absolute image point.
// The grammar always emits absolute pixel coordinates.
func boxPointNamed(args map[string]string, key string) (*schemas.Point, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s argument", schemas.ErrInferenceMalformed, key)
	}
	m := boxRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("%w: unparseable box %q", schemas.ErrInferenceMalformed, raw)
	}
	x, err1 := strconv.ParseFloat(m[1], 64)
	y, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: unparseable box %q", schemas.ErrInferenceMalformed, raw)
	}
	return &schemas.Point{X: x, Y: y}, nil
}
