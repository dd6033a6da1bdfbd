package arcengine

import "fmt"

// GridSize is the side length of the display grid. Coordinates sent with
// complex actions must fall inside [0, GridSize).
const GridSize = 64

// NumColors is the size of the cell color palette.
const NumColors = 16

// GameAction identifies one of the discrete actions a game understands.
// ActionReset starts or restarts an episode; Action1 through Action7 are
// gameplay actions. Action6 is the pointer action and requires x/y data.
type GameAction int

const (
	ActionReset GameAction = iota
	Action1
	Action2
	Action3
	Action4
	Action5
	Action6
	Action7
)

// String returns the wire name of the action (RESET, ACTION1..ACTION7).
func (a GameAction) String() string {
	if a == ActionReset {
		return "RESET"
	}
	if a >= Action1 && a <= Action7 {
		return fmt.Sprintf("ACTION%d", int(a))
	}
	return fmt.Sprintf("ACTION(%d)", int(a))
}

// IsComplex reports whether the action carries positional x/y data.
func (a GameAction) IsComplex() bool {
	return a == Action6
}

// ActionFromID converts a numeric action id to a GameAction.
func ActionFromID(id int) (GameAction, error) {
	if id < int(ActionReset) || id > int(Action7) {
		return 0, fmt.Errorf("%w: id %d", ErrUnknownAction, id)
	}
	return GameAction(id), nil
}

// ParseAction converts a wire name (RESET, ACTION1..ACTION7) to a GameAction.
func ParseAction(name string) (GameAction, error) {
	if name == "RESET" {
		return ActionReset, nil
	}
	var id int
	if _, err := fmt.Sscanf(name, "ACTION%d", &id); err == nil && id >= 1 && id <= 7 {
		return GameAction(id), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// ActionData carries the positional payload of a complex action.
type ActionData struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InBounds reports whether both coordinates lie inside the display grid.
func (d ActionData) InBounds() bool {
	return d.X >= 0 && d.X < GridSize && d.Y >= 0 && d.Y < GridSize
}

// ActionInput is one fully-specified action submitted to a game.
type ActionInput struct {
	ID        GameAction  `json:"id"`
	Data      *ActionData `json:"data,omitempty"`
	Reasoning any         `json:"reasoning,omitempty"`
}
