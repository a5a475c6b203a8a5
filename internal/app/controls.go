package app

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/Faultbox/mjtraj/internal/engine/input"
	"github.com/Faultbox/mjtraj/internal/playback"
)

// Action is a viewer command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionTogglePlay
	ActionStepBack
	ActionStepForward
	ActionSeekStart
	ActionSeekEnd
	ActionToggleLoop
	ActionFaster
	ActionSlower
	ActionResetCamera
	ActionFitCamera
	ActionNextCamera
	ActionToggleGhosts
	ActionToggleInstance
	ActionScreenshot
	ActionExport
)

var keyBindings = map[sdl.Scancode]Action{
	sdl.SCANCODE_ESCAPE: ActionQuit,
	sdl.SCANCODE_SPACE:  ActionTogglePlay,
	sdl.SCANCODE_LEFT:   ActionStepBack,
	sdl.SCANCODE_RIGHT:  ActionStepForward,
	sdl.SCANCODE_HOME:   ActionSeekStart,
	sdl.SCANCODE_END:    ActionSeekEnd,
	sdl.SCANCODE_L:      ActionToggleLoop,
	sdl.SCANCODE_UP:     ActionFaster,
	sdl.SCANCODE_DOWN:   ActionSlower,
	sdl.SCANCODE_R:      ActionResetCamera,
	sdl.SCANCODE_F:      ActionFitCamera,
	sdl.SCANCODE_C:      ActionNextCamera,
	sdl.SCANCODE_G:      ActionToggleGhosts,
	sdl.SCANCODE_P:      ActionScreenshot,
	sdl.SCANCODE_F12:    ActionScreenshot,
	sdl.SCANCODE_X:      ActionExport,
}

// ActionFor maps a key press to an action. Number keys 1-9 toggle the
// instance at that position and return its index.
func ActionFor(ev input.Event) (Action, int) {
	if ev.Type != input.EventKeyDown {
		return ActionNone, 0
	}
	if ev.Key >= sdl.SCANCODE_1 && ev.Key <= sdl.SCANCODE_9 {
		return ActionToggleInstance, int(ev.Key - sdl.SCANCODE_1)
	}
	return keyBindings[ev.Key], 0
}

const (
	maxSpeed = 16
	minSpeed = 1.0 / 16
)

// ApplyPlayback runs the actions that only touch the viewer. It reports
// false for actions it does not handle.
func ApplyPlayback(v *playback.Viewer, a Action, index int, shift bool) bool {
	clock := v.Clock()
	step := 1
	if shift {
		step = 10
	}
	switch a {
	case ActionTogglePlay:
		clock.Toggle()
	case ActionStepBack:
		clock.Step(-step, v.LastFrame())
	case ActionStepForward:
		clock.Step(step, v.LastFrame())
	case ActionSeekStart:
		clock.Seek(0)
	case ActionSeekEnd:
		clock.Seek(v.LastFrame())
	case ActionToggleLoop:
		clock.SetLoop(!clock.Loop())
	case ActionFaster:
		clock.SetSpeed(min(clock.Speed()*2, maxSpeed))
	case ActionSlower:
		clock.SetSpeed(max(clock.Speed()/2, minSpeed))
	case ActionToggleGhosts:
		toggleGhosts(v)
	case ActionToggleInstance:
		insts := v.Instances()
		if index < 0 || index >= len(insts) {
			return true
		}
		_ = v.SetVisible(insts[index].ID, !insts[index].Visible())
	default:
		return false
	}
	return true
}

// toggleGhosts ghosts every instance after the first, or clears them all
// when they are already ghosted.
func toggleGhosts(v *playback.Viewer) {
	insts := v.Instances()
	if len(insts) < 2 {
		return
	}
	on := false
	for _, inst := range insts[1:] {
		if !inst.Ghost() {
			on = true
			break
		}
	}
	for _, inst := range insts[1:] {
		_ = v.SetGhost(inst.ID, on)
	}
}

// ExportAbort inspects the events polled during an export. It reports
// whether the export should stop and whether the viewer should also quit.
// Escape cancels the export only; closing the window does both.
func ExportAbort(events []input.Event) (abort, quit bool) {
	for _, ev := range events {
		if ev.Type == input.EventQuit {
			return true, true
		}
		if a, _ := ActionFor(ev); a == ActionQuit {
			abort = true
		}
	}
	return abort, false
}
