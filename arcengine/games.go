package arcengine

// Compiled-in sample games. The trail games are deliberately tiny: they
// exist so the client library, its tests and the local server have a real
// engine to drive without downloading anything.

const (
	trailBackground = 5
	trailLetterBox  = 3
)

var trailSprites = map[string]*Sprite{
	"bad":  {Name: "bad", Pixels: [][]int{{8}}, Visible: true, Collidable: true},
	"good": {Name: "good", Pixels: [][]int{{14}}, Visible: true, Collidable: true},
	"left": {
		Name:       "left",
		Pixels:     [][]int{{14, 14}, {14, Transparent}},
		Visible:    true,
		Collidable: true,
		Tags:       []string{"sys_click"},
	},
	"right": {
		Name:       "right",
		Pixels:     [][]int{{8, 8}, {Transparent, 8}},
		Visible:    true,
		Collidable: true,
		Tags:       []string{"sys_click"},
	},
}

func trailLevels() []*Level {
	return []*Level{
		NewLevel(8, 8),
		NewLevel(16, 16),
		NewLevel(32, 32),
		NewLevel(40, 40),
		NewLevel(48, 48),
	}
}

// keyTrailGame grows a trail across the level: Action3 extends it leftwards
// (good), Action4 rightwards (bad). Reaching half the level width advances
// the level if no bad cell was placed, otherwise loses.
type keyTrailGame struct {
	*BaseGame
	won      bool
	depth    int
	position int
}

func newKeyTrailGame(gameID string, seed int64) Game {
	g := &keyTrailGame{
		BaseGame: NewBaseGame(gameID, trailLevels(), &Camera{Background: trailBackground, LetterBox: trailLetterBox}, []int{3, 4}, seed),
	}
	g.SetHooks(Hooks{Step: g.step, OnSetLevel: g.onSetLevel})
	return g
}

func (g *keyTrailGame) step() {
	switch g.Action().ID {
	case Action3: // move left
		if g.depth > 0 {
			g.position--
		}
		name := "good"
		if !g.won {
			name = "bad"
		}
		g.CurrentLevel().AddSprite(trailSprites[name].Clone().SetPosition(g.position, g.depth))
		g.depth++
	case Action4: // move right
		g.position++
		g.CurrentLevel().AddSprite(trailSprites["bad"].Clone().SetPosition(g.position, g.depth))
		g.won = false
		g.depth++
	}

	if g.depth >= g.Camera().Width/2 {
		if g.won {
			g.NextLevel()
		} else {
			g.Lose()
		}
	}
	g.CompleteAction()
}

func (g *keyTrailGame) onSetLevel(*Level) {
	g.won = true
	g.depth = 0
	g.position = g.Camera().Width/2 - 1
}

// clickTrailGame is the pointer-driven variant: Action6 on the "left" or
// "right" button sprite plays the corresponding move.
type clickTrailGame struct {
	*BaseGame
	won       bool
	depth     int
	placement int
}

func newClickTrailGame(gameID string, seed int64) Game {
	g := &clickTrailGame{
		BaseGame: NewBaseGame(gameID, trailLevels(), &Camera{Background: trailBackground, LetterBox: trailLetterBox}, []int{6}, seed),
	}
	g.SetHooks(Hooks{Step: g.step, OnSetLevel: g.onSetLevel})
	return g
}

func (g *clickTrailGame) step() {
	if in := g.Action(); in.ID == Action6 && in.Data != nil {
		if gx, gy, ok := g.Camera().DisplayToGrid(in.Data.X, in.Data.Y); ok {
			sprite := g.CurrentLevel().SpriteAt(gx, gy)
			switch {
			case sprite != nil && sprite.Name == "left":
				if g.depth > 0 {
					g.placement--
				}
				name := "good"
				if !g.won {
					name = "bad"
				}
				g.CurrentLevel().AddSprite(trailSprites[name].Clone().SetPosition(g.placement, g.depth))
				g.depth++
			case sprite != nil && sprite.Name == "right":
				g.placement++
				g.CurrentLevel().AddSprite(trailSprites["bad"].Clone().SetPosition(g.placement, g.depth))
				g.won = false
				g.depth++
			}
		}
	}

	if g.depth >= g.Camera().Width/2 {
		if g.won {
			g.NextLevel()
		} else {
			g.Lose()
		}
	}
	g.CompleteAction()
}

func (g *clickTrailGame) onSetLevel(level *Level) {
	g.won = true
	g.depth = 0
	g.placement = g.Camera().Width/2 - 1

	scale := g.LevelIndex()
	if scale < 1 {
		scale = 1
	}
	level.AddSprite(trailSprites["left"].Clone().SetPosition(0, 0).SetScale(scale))
	level.AddSprite(trailSprites["right"].Clone().SetPosition(g.Camera().Width-2*scale, 0).SetScale(scale))
}

func init() {
	Register("bt11", func(seed int64) Game { return newKeyTrailGame("bt11", seed) })
	Register("bt33", func(seed int64) Game { return newClickTrailGame("bt33", seed) })
	Register("ls20", func(seed int64) Game { return newKeyTrailGame("ls20", seed) })
}
