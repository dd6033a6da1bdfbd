package arcengine

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = time.Second
)

// ScriptGame runs game logic written in JavaScript inside a sandboxed goja
// runtime. The script configures its levels once at load time and reacts to
// actions through onAction()/onSetLevel(), mirroring how compiled-in games
// attach to BaseGame.
//
// Script contract:
//
//	configure({levels: [{width, height}, ...], actions: [3, 4],
//	           background: 5, letterBox: 3})
//	function onAction(action) { ... }      // action: {id, x, y}
//	function onSetLevel(level) { ... }     // level: {index, width, height}
//
// Host API: addSprite({name, pixels, x, y, scale}), spriteAt(x, y),
// displayToGrid(x, y), nextLevel(), lose(), completeAction(), random().
type ScriptGame struct {
	*BaseGame
	runtime  *goja.Runtime
	onAction goja.Callable
	onLevel  goja.Callable
}

type scriptConfig struct {
	Levels []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"levels"`
	Actions    []int `json:"actions"`
	Background int   `json:"background"`
	LetterBox  int   `json:"letterBox"`
}

// NewScriptGame loads a game from JavaScript source.
func NewScriptGame(gameID, source string, seed int64) (*ScriptGame, error) {
	g := &ScriptGame{runtime: goja.New()}

	var cfg *scriptConfig
	g.runtime.Set("configure", func(call goja.FunctionCall) goja.Value {
		var c scriptConfig
		if len(call.Arguments) > 0 {
			if err := g.runtime.ExportTo(call.Arguments[0], &c); err != nil {
				panic(g.runtime.ToValue(fmt.Sprintf("configure: %v", err)))
			}
		}
		cfg = &c
		return goja.Undefined()
	})

	// Sandbox: scripts describe game logic, nothing else.
	g.runtime.Set("eval", goja.Undefined())
	g.runtime.Set("Function", goja.Undefined())

	if err := g.runWithTimeout(scriptInitTimeout, func() error {
		_, err := g.runtime.RunString(source)
		return err
	}); err != nil {
		return nil, fmt.Errorf("script load: %w", err)
	}
	if cfg == nil || len(cfg.Levels) == 0 {
		return nil, fmt.Errorf("script for %s did not call configure() with levels", gameID)
	}

	levels := make([]*Level, len(cfg.Levels))
	for i, l := range cfg.Levels {
		levels[i] = NewLevel(l.Width, l.Height)
	}
	camera := &Camera{Background: cfg.Background, LetterBox: cfg.LetterBox}
	g.BaseGame = NewBaseGame(gameID, levels, camera, cfg.Actions, seed)
	g.SetHooks(Hooks{Step: g.step, OnSetLevel: g.setLevel})
	g.injectHostAPI()

	if fn, ok := goja.AssertFunction(g.runtime.Get("onAction")); ok {
		g.onAction = fn
	} else {
		return nil, fmt.Errorf("script for %s does not define onAction()", gameID)
	}
	if fn, ok := goja.AssertFunction(g.runtime.Get("onSetLevel")); ok {
		g.onLevel = fn
	}
	return g, nil
}

func (g *ScriptGame) injectHostAPI() {
	rt := g.runtime

	rt.Set("addSprite", func(call goja.FunctionCall) goja.Value {
		var spec struct {
			Name   string   `json:"name"`
			Pixels [][]int  `json:"pixels"`
			X      int      `json:"x"`
			Y      int      `json:"y"`
			Scale  int      `json:"scale"`
			Tags   []string `json:"tags"`
		}
		if len(call.Arguments) > 0 {
			if err := rt.ExportTo(call.Arguments[0], &spec); err != nil {
				panic(rt.ToValue(fmt.Sprintf("addSprite: %v", err)))
			}
		}
		if spec.Scale < 1 {
			spec.Scale = 1
		}
		g.CurrentLevel().AddSprite(&Sprite{
			Name:       spec.Name,
			Pixels:     spec.Pixels,
			Visible:    true,
			Collidable: true,
			Scale:      spec.Scale,
			Tags:       spec.Tags,
			X:          spec.X,
			Y:          spec.Y,
		})
		return goja.Undefined()
	})

	rt.Set("spriteAt", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Null()
		}
		x := int(call.Arguments[0].ToInteger())
		y := int(call.Arguments[1].ToInteger())
		sprite := g.CurrentLevel().SpriteAt(x, y)
		if sprite == nil {
			return goja.Null()
		}
		obj := rt.NewObject()
		obj.Set("name", sprite.Name)
		obj.Set("tags", sprite.Tags)
		return obj
	})

	rt.Set("displayToGrid", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Null()
		}
		gx, gy, ok := g.Camera().DisplayToGrid(
			int(call.Arguments[0].ToInteger()),
			int(call.Arguments[1].ToInteger()),
		)
		if !ok {
			return goja.Null()
		}
		obj := rt.NewObject()
		obj.Set("x", gx)
		obj.Set("y", gy)
		return obj
	})

	rt.Set("nextLevel", func(goja.FunctionCall) goja.Value {
		g.NextLevel()
		return goja.Undefined()
	})
	rt.Set("lose", func(goja.FunctionCall) goja.Value {
		g.Lose()
		return goja.Undefined()
	})
	rt.Set("completeAction", func(goja.FunctionCall) goja.Value {
		g.CompleteAction()
		return goja.Undefined()
	})
	rt.Set("random", func(goja.FunctionCall) goja.Value {
		return rt.ToValue(g.Rand().Float64())
	})
}

func (g *ScriptGame) step() {
	in := g.Action()
	action := g.runtime.NewObject()
	action.Set("id", int(in.ID))
	if in.Data != nil {
		action.Set("x", in.Data.X)
		action.Set("y", in.Data.Y)
	}
	err := g.runWithTimeout(scriptCallTimeout, func() error {
		_, err := g.onAction(goja.Undefined(), action)
		return err
	})
	if err != nil {
		// A faulty script ends the episode rather than wedging the session.
		g.Lose()
	}
}

func (g *ScriptGame) setLevel(level *Level) {
	if g.onLevel == nil {
		return
	}
	obj := g.runtime.NewObject()
	obj.Set("index", g.LevelIndex())
	obj.Set("width", level.Width)
	obj.Set("height", level.Height)
	err := g.runWithTimeout(scriptCallTimeout, func() error {
		_, err := g.onLevel(goja.Undefined(), obj)
		return err
	})
	if err != nil {
		g.Lose()
	}
}

func (g *ScriptGame) runWithTimeout(d time.Duration, fn func() error) error {
	timer := time.AfterFunc(d, func() {
		g.runtime.Interrupt("script timeout")
	})
	defer func() {
		timer.Stop()
		g.runtime.ClearInterrupt()
	}()
	return fn()
}
