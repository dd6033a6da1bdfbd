package arcengine

// Transparent marks a sprite pixel that does not paint its cell.
const Transparent = -1

// Sprite is a small pixel stamp placed on a level grid. Sprites are cloned
// before placement so shared definitions stay immutable.
type Sprite struct {
	Name       string
	Pixels     [][]int
	Visible    bool
	Collidable bool
	Scale      int
	Tags       []string
	X, Y       int
}

// Clone returns a placeable copy of the sprite definition.
func (s *Sprite) Clone() *Sprite {
	c := *s
	c.Pixels = s.Pixels // definitions are never written through
	if c.Scale <= 0 {
		c.Scale = 1
	}
	return &c
}

// SetPosition places the sprite at grid coordinates (x, y).
func (s *Sprite) SetPosition(x, y int) *Sprite {
	s.X, s.Y = x, y
	return s
}

// SetScale stretches each sprite pixel into a scale×scale block.
func (s *Sprite) SetScale(scale int) *Sprite {
	if scale < 1 {
		scale = 1
	}
	s.Scale = scale
	return s
}

// covers reports whether the placed sprite paints grid cell (x, y).
func (s *Sprite) covers(x, y int) bool {
	scale := s.Scale
	if scale < 1 {
		scale = 1
	}
	for py, row := range s.Pixels {
		for px, v := range row {
			if v == Transparent {
				continue
			}
			x0 := s.X + px*scale
			y0 := s.Y + py*scale
			if x >= x0 && x < x0+scale && y >= y0 && y < y0+scale {
				return true
			}
		}
	}
	return false
}

// Level is one stage of a game: a grid of a fixed size plus the sprites
// currently placed on it.
type Level struct {
	Width, Height int
	sprites       []*Sprite
}

// NewLevel creates an empty level with the given grid size.
func NewLevel(width, height int) *Level {
	return &Level{Width: width, Height: height}
}

// AddSprite places a sprite on the level. Later sprites draw on top.
func (l *Level) AddSprite(s *Sprite) {
	l.sprites = append(l.sprites, s)
}

// ClearSprites removes all placed sprites.
func (l *Level) ClearSprites() {
	l.sprites = nil
}

// SpriteAt returns the topmost sprite covering grid cell (x, y), or nil.
func (l *Level) SpriteAt(x, y int) *Sprite {
	for i := len(l.sprites) - 1; i >= 0; i-- {
		if l.sprites[i].covers(x, y) {
			return l.sprites[i]
		}
	}
	return nil
}

// paint renders the level into a width×height grid of palette colors,
// with cells not covered by a visible sprite left at background.
func (l *Level) paint(background int) [][]int {
	grid := make([][]int, l.Height)
	for y := range grid {
		grid[y] = make([]int, l.Width)
		for x := range grid[y] {
			grid[y][x] = background
		}
	}
	for _, s := range l.sprites {
		if !s.Visible {
			continue
		}
		scale := s.Scale
		if scale < 1 {
			scale = 1
		}
		for py, row := range s.Pixels {
			for px, v := range row {
				if v == Transparent {
					continue
				}
				for dy := 0; dy < scale; dy++ {
					for dx := 0; dx < scale; dx++ {
						x := s.X + px*scale + dx
						y := s.Y + py*scale + dy
						if x >= 0 && x < l.Width && y >= 0 && y < l.Height {
							grid[y][x] = v
						}
					}
				}
			}
		}
	}
	return grid
}

// Camera projects a level grid onto the fixed 64×64 display. The level is
// scaled by the largest integer factor that fits and centered, with the
// remaining border filled with the letterbox color.
type Camera struct {
	Background int
	LetterBox  int

	// Width and Height track the grid size of the level currently in view.
	Width, Height int
}

// SetLevel points the camera at a level's grid.
func (c *Camera) SetLevel(l *Level) {
	c.Width, c.Height = l.Width, l.Height
}

// scaleOffset returns the integer scale factor and top-left display offset
// for the current level grid.
func (c *Camera) scaleOffset() (scale, offX, offY int) {
	if c.Width <= 0 || c.Height <= 0 {
		return 1, 0, 0
	}
	scale = GridSize / c.Width
	if s := GridSize / c.Height; s < scale {
		scale = s
	}
	if scale < 1 {
		scale = 1
	}
	offX = (GridSize - c.Width*scale) / 2
	offY = (GridSize - c.Height*scale) / 2
	return scale, offX, offY
}

// Render draws the level into one 64×64 display layer.
func (c *Camera) Render(l *Level) [][]int {
	display := make([][]int, GridSize)
	for y := range display {
		display[y] = make([]int, GridSize)
		for x := range display[y] {
			display[y][x] = c.LetterBox
		}
	}
	grid := l.paint(c.Background)
	scale, offX, offY := c.scaleOffset()
	for gy := 0; gy < l.Height; gy++ {
		for gx := 0; gx < l.Width; gx++ {
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					x := offX + gx*scale + dx
					y := offY + gy*scale + dy
					if x < GridSize && y < GridSize {
						display[y][x] = grid[gy][gx]
					}
				}
			}
		}
	}
	return display
}

// DisplayToGrid converts display coordinates (as carried by a complex
// action) into level grid coordinates. The second return is false when the
// point falls into the letterbox border.
func (c *Camera) DisplayToGrid(x, y int) (gx, gy int, ok bool) {
	scale, offX, offY := c.scaleOffset()
	gx = (x - offX) / scale
	gy = (y - offY) / scale
	if x < offX || y < offY || gx >= c.Width || gy >= c.Height {
		return 0, 0, false
	}
	return gx, gy, true
}
