package arcade

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/arcprize/arcade-go/arcengine"
)

// RenderFunc draws the frame layers produced by one step. steps counts the
// calls made so far in the session, starting at 1.
type RenderFunc func(steps int, frame *arcengine.Frame)

// ColorMap maps cell values 0-15 to RGBA hex colors.
var ColorMap = map[int]string{
	0:  "#FFFFFFFF", // white
	1:  "#CCCCCCFF", // off-white
	2:  "#999999FF", // neutral light
	3:  "#666666FF", // neutral
	4:  "#333333FF", // off black
	5:  "#000000FF", // black
	6:  "#E53AA3FF", // magenta
	7:  "#FF7BCCFF", // magenta light
	8:  "#F93C31FF", // red
	9:  "#1E93FFFF", // blue
	10: "#88D8F1FF", // blue light
	11: "#FFDC00FF", // yellow
	12: "#FF851BFF", // orange
	13: "#921231FF", // maroon
	14: "#4FCC30FF", // green
	15: "#A356D6FF", // purple
}

func hexToRGB(hexColor string) (r, g, b int) {
	hexColor = strings.TrimPrefix(hexColor, "#")
	fmt.Sscanf(hexColor[:6], "%02x%02x%02x", &r, &g, &b)
	return r, g, b
}

const (
	ansiReset      = "\033[0m"
	ansiHome       = "\033[H"
	ansiClear      = "\033[2J"
	ansiHideCursor = "\033[?25l"
	ansiShowCursor = "\033[?25h"
	terminalBlock  = "██"
)

// terminalRenderer draws each frame layer in place with 24-bit ANSI colors,
// pacing layers at the game's FPS.
type terminalRenderer struct {
	out       io.Writer
	fps       int
	skipDelay bool
}

// NewTerminalRenderer returns a RenderFunc that paints to stdout. fps <= 0
// falls back to 5. skipDelay drops inter-layer pacing for headless runs.
func NewTerminalRenderer(fps int, skipDelay bool) RenderFunc {
	r := &terminalRenderer{out: os.Stdout, fps: fps, skipDelay: skipDelay}
	return r.render
}

func (r *terminalRenderer) render(steps int, frame *arcengine.Frame) {
	if len(frame.Frame) == 0 {
		return
	}
	fps := r.fps
	if fps <= 0 {
		fps = 5
	}
	delay := time.Second / time.Duration(fps)

	layers := make([]string, len(frame.Frame))
	for i, layer := range frame.Frame {
		layers[i] = r.paintLayer(steps, frame, layer)
	}

	fmt.Fprint(r.out, ansiHideCursor)
	fmt.Fprintf(r.out, "%s%s%s", ansiHome, ansiClear, layers[0])
	for _, layer := range layers[1:] {
		if !r.skipDelay {
			time.Sleep(delay)
		}
		fmt.Fprintf(r.out, "%s%s", ansiHome, layer)
	}
	fmt.Fprint(r.out, ansiShowCursor)
	fmt.Fprintf(r.out, "\n%s", ansiReset)
	if !r.skipDelay {
		time.Sleep(delay)
	}
}

func (r *terminalRenderer) paintLayer(steps int, frame *arcengine.Frame, layer [][]int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Step: %d - State: %s\n\n", steps, frame.State)
	for _, row := range layer {
		for _, value := range row {
			hex, ok := ColorMap[value]
			if !ok {
				hex = "#000000FF"
			}
			red, green, blue := hexToRGB(hex)
			fmt.Fprintf(&sb, "\033[38;2;%d;%d;%dm%s%s", red, green, blue, terminalBlock, ansiReset)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// rendererForMode builds a renderer from a render mode name. Unknown modes
// log a warning and render nothing. The "human" windowed mode has no
// terminal-free backend here and falls back to the terminal renderer.
func rendererForMode(mode string, info EnvironmentInfo, logger *log.Logger) RenderFunc {
	switch mode {
	case "":
		return nil
	case "terminal", "human":
		return NewTerminalRenderer(info.DefaultFPS, false)
	case "terminal-fast":
		return NewTerminalRenderer(info.DefaultFPS, true)
	default:
		logger.Printf("render_mode_unknown mode=%q", mode)
		return nil
	}
}
