package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

// recordingInput logs every input call in order instead of touching the OS.
type recordingInput struct {
	calls []string
	// failOn makes the nth Move call fail (1-based); 0 disables.
	failOn   int
	moveSeen int
}

func (r *recordingInput) Move(x, y int) error {
	r.moveSeen++
	if r.failOn > 0 && r.moveSeen == r.failOn {
		r.calls = append(r.calls, "move:FAIL")
		return errors.New("injected move failure")
	}
	r.calls = append(r.calls, fmt.Sprintf("move(%d,%d)", x, y))
	return nil
}

func (r *recordingInput) Toggle(button string, down bool) error {
	r.calls = append(r.calls, fmt.Sprintf("toggle(%s,%v)", button, down))
	return nil
}

func (r *recordingInput) Click(button string, double bool) error {
	r.calls = append(r.calls, fmt.Sprintf("click(%s,%v)", button, double))
	return nil
}

func (r *recordingInput) TypeText(text string) error {
	r.calls = append(r.calls, "type:"+text)
	return nil
}

func (r *recordingInput) KeyTap(key string, modifiers []string) error {
	r.calls = append(r.calls, fmt.Sprintf("tap(%s,%v)", key, modifiers))
	return nil
}

func (r *recordingInput) Scroll(dx, dy int) error {
	r.calls = append(r.calls, fmt.Sprintf("scroll(%d,%d)", dx, dy))
	return nil
}

func newTestExecutor(t *testing.T, in Input) *Executor {
	t.Helper()
	return New(in, zaptest.NewLogger(t))
}

func TestExecute_Click(t *testing.T) {
	in := &recordingInput{}
	e := newTestExecutor(t, in)

	out := e.Execute(context.Background(), schemas.Action{
		Kind:  schemas.DecisionClick,
		Point: schemas.ScreenPoint{X: 100, Y: 200},
	})

	assert.True(t, out.OK)
	require.Len(t, in.calls, 2)
	assert.Equal(t, "move(100,200)", in.calls[0])
	assert.Equal(t, "click(left,false)", in.calls[1])
}

func TestExecute_DragOrderingAndRelease(t *testing.T) {
	in := &recordingInput{}
	e := newTestExecutor(t, in)

	out := e.Execute(context.Background(), schemas.Action{
		Kind:  schemas.DecisionDrag,
		Point: schemas.ScreenPoint{X: 10, Y: 10},
		End:   schemas.ScreenPoint{X: 300, Y: 220},
	})
	require.True(t, out.OK, out.Reason)

	// Press comes after the initial move, release is last, and the final
	// move lands exactly on the end point.
	require.GreaterOrEqual(t, len(in.calls), 4)
	assert.Equal(t, "move(10,10)", in.calls[0])
	assert.Equal(t, "toggle(left,true)", in.calls[1])
	assert.Equal(t, "toggle(left,false)", in.calls[len(in.calls)-1])
	assert.Equal(t, "move(300,220)", in.calls[len(in.calls)-2])
}

func TestExecute_DragReleasesOnMidGestureFailure(t *testing.T) {
	in := &recordingInput{failOn: 3} // start move ok, then fail mid-path
	e := newTestExecutor(t, in)

	out := e.Execute(context.Background(), schemas.Action{
		Kind:  schemas.DecisionDrag,
		Point: schemas.ScreenPoint{X: 0, Y: 0},
		End:   schemas.ScreenPoint{X: 500, Y: 500},
	})

	assert.False(t, out.OK)
	// The button must never be left pressed.
	assert.Equal(t, "toggle(left,false)", in.calls[len(in.calls)-1])
}

func TestExecute_TypeAndKeyCombo(t *testing.T) {
	in := &recordingInput{}
	e := newTestExecutor(t, in)

	out := e.Execute(context.Background(), schemas.Action{
		Kind: schemas.DecisionType,
		Text: "hello world",
	})
	assert.True(t, out.OK)
	assert.Equal(t, "type:hello world", in.calls[0])

	out = e.Execute(context.Background(), schemas.Action{
		Kind: schemas.DecisionKeyCombo,
		Keys: []string{"CTRL", "SHIFT", "p"},
	})
	assert.True(t, out.OK)
	assert.Equal(t, "tap(p,[ctrl shift])", in.calls[1])
}

func TestExecute_ScrollMovesToAnchorFirst(t *testing.T) {
	in := &recordingInput{}
	e := newTestExecutor(t, in)

	out := e.Execute(context.Background(), schemas.Action{
		Kind:     schemas.DecisionScroll,
		Point:    schemas.ScreenPoint{X: 400, Y: 300},
		HasPoint: true,
		Delta:    schemas.ScrollDelta{DY: 10},
	})
	require.True(t, out.OK)
	assert.Equal(t, []string{"move(400,300)", "scroll(0,10)"}, in.calls)

	// An anchor at the virtual-desktop origin is still an anchor.
	in.calls = nil
	out = e.Execute(context.Background(), schemas.Action{
		Kind:     schemas.DecisionScroll,
		Point:    schemas.ScreenPoint{X: 0, Y: 0},
		HasPoint: true,
		Delta:    schemas.ScrollDelta{DY: 5},
	})
	require.True(t, out.OK)
	assert.Equal(t, []string{"move(0,0)", "scroll(0,5)"}, in.calls)

	// Without an anchor the wheel turns where the cursor already is.
	in.calls = nil
	out = e.Execute(context.Background(), schemas.Action{
		Kind:  schemas.DecisionScroll,
		Delta: schemas.ScrollDelta{DY: -10},
	})
	require.True(t, out.OK)
	assert.Equal(t, []string{"scroll(0,-10)"}, in.calls)
}

func TestExecute_CancelledBeforeGesture(t *testing.T) {
	in := &recordingInput{}
	e := newTestExecutor(t, in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Execute(ctx, schemas.Action{
		Kind:  schemas.DecisionClick,
		Point: schemas.ScreenPoint{X: 1, Y: 1},
	})
	assert.False(t, out.OK)
	assert.Empty(t, in.calls, "no input may be synthesized after cancellation")
}

func TestExecute_NonExecutableKind(t *testing.T) {
	e := newTestExecutor(t, &recordingInput{})

	out := e.Execute(context.Background(), schemas.Action{Kind: schemas.DecisionDone})
	assert.False(t, out.OK)
	assert.Contains(t, out.Reason, "not executable")
}

func TestNormalizeCombo(t *testing.T) {
	cases := []struct {
		name    string
		keys    []string
		tap     string
		mods    []string
		wantErr bool
	}{
		{name: "list form", keys: []string{"CTRL", "L"}, tap: "l", mods: []string{"ctrl"}},
		{name: "joined form", keys: []string{"ctrl+shift+p"}, tap: "p", mods: []string{"ctrl", "shift"}},
		{name: "aliases", keys: []string{"control", "return"}, tap: "enter", mods: []string{"ctrl"}},
		{name: "meta alias", keys: []string{"super", "l"}, tap: "l", mods: []string{"cmd"}},
		{name: "bare modifier", keys: []string{"ctrl"}, tap: "ctrl", mods: nil},
		{name: "all modifiers tap last", keys: []string{"ctrl", "shift"}, tap: "shift", mods: []string{"ctrl"}},
		{name: "two non-modifiers", keys: []string{"a", "b"}, wantErr: true},
		{name: "empty", keys: nil, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tap, mods, err := NormalizeCombo(tc.keys)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.tap, tap)
			assert.Equal(t, tc.mods, mods)
		})
	}
}

func TestGesturePath_EndsExactlyAtTarget(t *testing.T) {
	e := newTestExecutor(t, &recordingInput{})

	start := vec{0, 0}
	end := vec{417, 233}
	path := gesturePath(start, end, e.rng, 40)

	require.NotEmpty(t, path)
	assert.Equal(t, end, path[len(path)-1])
}
