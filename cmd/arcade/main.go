package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcprize/arcade-go/arcade"
	"github.com/arcprize/arcade-go/arcengine"
)

func main() {
	var mode string

	rootCmd := &cobra.Command{
		Use:   "arcade",
		Short: "Play, serve and inspect ARC-AGI-3 grid game environments.",
	}
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "operation mode: normal, online or offline (default from OPERATION_MODE)")

	newArcade := func() (*arcade.Arcade, error) {
		return arcade.New(arcade.Config{Mode: arcade.OperationMode(mode)})
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newArcade()
			if err != nil {
				return err
			}
			defer a.Close()
			for _, env := range a.GetEnvironments() {
				where := "remote"
				if env.LocalDir != "" {
					where = env.LocalDir
				}
				fmt.Printf("%-20s %-30s %s\n", env.GameID, env.Title, where)
			}
			return nil
		},
	}

	var (
		playSteps  int
		playSeed   int64
		playRender string
		playRecord bool
	)
	playCmd := &cobra.Command{
		Use:   "play <game-id>",
		Short: "Play an environment with a random agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newArcade()
			if err != nil {
				return err
			}
			defer a.Close()
			return playRandom(a, args[0], playSteps, playSeed, playRender, playRecord)
		},
	}
	playCmd.Flags().IntVar(&playSteps, "steps", 200, "maximum actions before giving up")
	playCmd.Flags().Int64Var(&playSeed, "seed", 0, "game seed")
	playCmd.Flags().StringVar(&playRender, "render", "", "render mode: terminal, terminal-fast")
	playCmd.Flags().BoolVar(&playRecord, "record", false, "save a JSONL recording")

	var (
		serveAddr       string
		serveRecordings bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newArcade()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ListenAndServe(serveAddr, arcade.ServerOptions{
				SaveAllRecordings: serveRecordings,
			})
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "0.0.0.0:8001", "listen address")
	serveCmd.Flags().BoolVar(&serveRecordings, "recordings", false, "record every served session")

	rootCmd.AddCommand(listCmd, playCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// playRandom drives one episode with uniformly random actions and prints the
// closed scorecard.
func playRandom(a *arcade.Arcade, gameID string, steps int, seed int64, renderMode string, record bool) error {
	env := a.Make(gameID, arcade.MakeOptions{
		Seed:          seed,
		SaveRecording: record,
		RenderMode:    renderMode,
	})
	if env == nil {
		return fmt.Errorf("could not make environment %q", gameID)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < steps; i++ {
		obs := env.ObservationSpace()
		if obs == nil || obs.State.Terminal() {
			break
		}
		actions := gameplayActions(env.ActionSpace())
		if len(actions) == 0 {
			break
		}
		action := actions[rng.Intn(len(actions))]
		var data *arcengine.ActionData
		if action.IsComplex() {
			data = &arcengine.ActionData{
				X: rng.Intn(arcengine.GridSize),
				Y: rng.Intn(arcengine.GridSize),
			}
		}
		if frame := env.Step(action, data, nil); frame == nil {
			break
		}
	}

	sc := a.CloseScorecard("")
	if sc == nil {
		return fmt.Errorf("no scorecard to close")
	}
	out, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func gameplayActions(actions []arcengine.GameAction) []arcengine.GameAction {
	var out []arcengine.GameAction
	for _, a := range actions {
		if a != arcengine.ActionReset {
			out = append(out, a)
		}
	}
	return out
}
