package arcade

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/arcprize/arcade-go/arcengine"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvironmentScore is the scored summary of a single play.
type EnvironmentScore struct {
	ID                   string              `json:"id,omitempty"`
	Guid                 string              `json:"guid,omitempty"`
	Score                float64             `json:"score"`
	LevelsCompleted      int                 `json:"levels_completed"`
	Actions              int                 `json:"actions"`
	Resets               int                 `json:"resets"`
	State                arcengine.GameState `json:"state,omitempty"`
	Completed            bool                `json:"completed"`
	LevelScores          []float64           `json:"level_scores,omitempty"`
	LevelActions         []int               `json:"level_actions,omitempty"`
	LevelBaselineActions []int               `json:"level_baseline_actions,omitempty"`
	NumberOfLevels       int                 `json:"number_of_levels,omitempty"`
	NumberOfEnvironments int                 `json:"number_of_environments,omitempty"`
	Message              string              `json:"message,omitempty"`
}

// scoreCalculator accumulates per-level results for one play. A level earns
// min(100, baseline/actions*100) when completed, 0 otherwise; the play's
// score is the mean over all levels the game defines.
type scoreCalculator struct {
	id                   string
	guid                 string
	resets               int
	state                arcengine.GameState
	completed            bool
	levelScores          []float64
	levelsCompleted      int
	actions              int
	environments         map[string]struct{}
	levelActions         []int
	levelBaselineActions []int
}

func (c *scoreCalculator) addLevel(completed bool, actionsTaken, baseline int, gameID string) {
	c.actions += actionsTaken
	if gameID != "" {
		if c.environments == nil {
			c.environments = make(map[string]struct{})
		}
		c.environments[gameID] = struct{}{}
	}

	score := 0.0
	if completed {
		c.levelsCompleted++
		if actionsTaken > 0 {
			score = float64(baseline) / float64(actionsTaken) * 100
			if score > 100 {
				score = 100
			}
		}
	}
	c.levelScores = append(c.levelScores, score)
	c.levelActions = append(c.levelActions, actionsTaken)
	c.levelBaselineActions = append(c.levelBaselineActions, baseline)
}

func (c *scoreCalculator) toScore(includeLevels bool) EnvironmentScore {
	score := 0.0
	if len(c.levelScores) > 0 {
		for _, s := range c.levelScores {
			score += s
		}
		score /= float64(len(c.levelScores))
	}

	out := EnvironmentScore{
		ID:              c.id,
		Guid:            c.guid,
		Score:           score,
		LevelsCompleted: c.levelsCompleted,
		Actions:         c.actions,
		Resets:          c.resets,
		State:           c.state,
		Completed:       c.completed,
	}
	if includeLevels {
		out.LevelScores = c.levelScores
		out.LevelActions = c.levelActions
		out.LevelBaselineActions = c.levelBaselineActions
	} else {
		out.NumberOfLevels = len(c.levelScores)
		out.NumberOfEnvironments = len(c.environments)
	}
	return out
}

// EnvironmentScoreList collects every play of one game. The aggregates take
// the best play for score and progress, and sum effort across plays.
type EnvironmentScoreList struct {
	ID   string             `json:"id"`
	Runs []EnvironmentScore `json:"runs"`
}

// Score is the best run's score.
func (l *EnvironmentScoreList) Score() float64 {
	best := 0.0
	for _, run := range l.Runs {
		if run.Score > best {
			best = run.Score
		}
	}
	return best
}

// Actions sums actions across runs.
func (l *EnvironmentScoreList) Actions() int {
	total := 0
	for _, run := range l.Runs {
		total += run.Actions
	}
	return total
}

// LevelsCompleted is the best run's level count.
func (l *EnvironmentScoreList) LevelsCompleted() int {
	best := 0
	for _, run := range l.Runs {
		if run.LevelsCompleted > best {
			best = run.LevelsCompleted
		}
	}
	return best
}

// Completed reports whether any run won.
func (l *EnvironmentScoreList) Completed() bool {
	for _, run := range l.Runs {
		if run.Completed {
			return true
		}
	}
	return false
}

// LevelCount is the largest number of levels any run touched.
func (l *EnvironmentScoreList) LevelCount() int {
	best := 0
	for _, run := range l.Runs {
		if n := len(run.LevelScores); n > best {
			best = n
		}
	}
	return best
}

// Resets sums resets across runs.
func (l *EnvironmentScoreList) Resets() int {
	total := 0
	for _, run := range l.Runs {
		total += run.Resets
	}
	return total
}

type environmentScoreListJSON struct {
	ID              string             `json:"id"`
	Runs            []EnvironmentScore `json:"runs"`
	Score           float64            `json:"score"`
	Actions         int                `json:"actions"`
	LevelsCompleted int                `json:"levels_completed"`
	Completed       bool               `json:"completed"`
	LevelCount      int                `json:"level_count"`
	Resets          int                `json:"resets"`
}

// MarshalJSON inlines the computed aggregates alongside the runs.
func (l EnvironmentScoreList) MarshalJSON() ([]byte, error) {
	return json.Marshal(environmentScoreListJSON{
		ID:              l.ID,
		Runs:            l.Runs,
		Score:           l.Score(),
		Actions:         l.Actions(),
		LevelsCompleted: l.LevelsCompleted(),
		Completed:       l.Completed(),
		LevelCount:      l.LevelCount(),
		Resets:          l.Resets(),
	})
}

// UnmarshalJSON restores the runs; aggregates are recomputed on demand.
func (l *EnvironmentScoreList) UnmarshalJSON(b []byte) error {
	var raw environmentScoreListJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.ID = raw.ID
	l.Runs = raw.Runs
	return nil
}

// EnvironmentScorecard is a closed scorecard with scores computed. Score is
// the mean of each game's best-run score.
type EnvironmentScorecard struct {
	SourceURL  string                 `json:"source_url,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Opaque     any                    `json:"opaque,omitempty"`
	CardID     string                 `json:"card_id"`
	APIKey     string                 `json:"api_key,omitempty"`
	Score      float64                `json:"score"`
	Games      []EnvironmentScoreList `json:"environments"`
	TagsScores []EnvironmentScore     `json:"tags_scores,omitempty"`

	OpenedAt   time.Time `json:"-"`
	LastUpdate time.Time `json:"-"`
}

// TotalEnvironmentsCompleted counts games with a winning run.
func (s *EnvironmentScorecard) TotalEnvironmentsCompleted() int {
	n := 0
	for i := range s.Games {
		if s.Games[i].Completed() {
			n++
		}
	}
	return n
}

// TotalLevelsCompleted sums the best level count of each game.
func (s *EnvironmentScorecard) TotalLevelsCompleted() int {
	total := 0
	for i := range s.Games {
		total += s.Games[i].LevelsCompleted()
	}
	return total
}

// TotalActions sums actions across all games.
func (s *EnvironmentScorecard) TotalActions() int {
	total := 0
	for i := range s.Games {
		total += s.Games[i].Actions()
	}
	return total
}

// Get looks up a single run summary by game id, or the whole scorecard when
// gameID is empty. Missing games yield a zero value and ok=false.
func (s *EnvironmentScorecard) Get(gameID string) (EnvironmentScore, bool) {
	for i := range s.Games {
		for _, run := range s.Games[i].Runs {
			if run.ID == gameID {
				return run, true
			}
		}
	}
	return EnvironmentScore{}, false
}

// rawScoresFromCard reconstructs per-level action counts for a play when no
// baselines are available, so the zero-score report still shows effort.
func rawScoresFromCard(card *Card, idx int) (actions []int, scores []float64, baselines []int) {
	marks := card.ActionsByLevel[idx]
	prev := 0
	for _, mark := range marks {
		actions = append(actions, mark.Actions-prev)
		scores = append(scores, 0)
		baselines = append(baselines, -1)
		prev = mark.Actions
	}
	if card.States[idx] != arcengine.StateWin {
		actions = append(actions, card.Actions[idx]-prev)
		scores = append(scores, 0)
		baselines = append(baselines, -1)
	}
	return actions, scores, baselines
}

// scorePlay scores one play of a card against the game's baselines.
// tagsScores, when non-nil, also accumulates the play into per-tag totals.
func scorePlay(card *Card, gameID string, idx int, info *EnvironmentInfo, tagsScores map[string]*scoreCalculator) EnvironmentScore {
	guid := card.Guids[idx]
	actions := card.Actions[idx]
	resets := card.Resets[idx]
	state := card.States[idx]
	completed := state == arcengine.StateWin

	zeroScore := func(message string) EnvironmentScore {
		levelActions, scores, baselines := rawScoresFromCard(card, idx)
		return EnvironmentScore{
			ID:                   card.GameID,
			Guid:                 guid,
			LevelsCompleted:      card.LevelsCompleted[idx],
			Actions:              actions,
			Resets:               resets,
			State:                state,
			Completed:            completed,
			LevelActions:         levelActions,
			LevelScores:          scores,
			LevelBaselineActions: baselines,
			Message:              message,
		}
	}

	if info == nil {
		return zeroScore("no matching environment info for " + gameID)
	}
	if len(info.BaselineActions) == 0 {
		return zeroScore("baseline actions are not available for this environment")
	}
	if len(info.BaselineActions) < len(card.ActionsByLevel[idx]) {
		return zeroScore("baseline actions size mismatch")
	}

	calc := &scoreCalculator{
		id:        card.GameID,
		guid:      guid,
		resets:    resets,
		state:     state,
		completed: completed,
	}
	marks := card.ActionsByLevel[idx]
	prev := 0
	for levelIdx, baseline := range info.BaselineActions {
		var levelActions int
		var levelCompleted bool
		if levelIdx < len(marks) {
			levelCompleted = true
			levelActions = marks[levelIdx].Actions - prev
			prev = marks[levelIdx].Actions
		} else {
			levelActions = card.Actions[idx] - prev
			prev = card.Actions[idx]
		}
		calc.addLevel(levelCompleted, levelActions, baseline, "")

		if tagsScores != nil {
			for _, tag := range info.Tags {
				tagCalc := tagsScores[tag]
				if tagCalc == nil {
					tagCalc = &scoreCalculator{id: tag}
					tagsScores[tag] = tagCalc
				}
				tagCalc.addLevel(levelCompleted, levelActions, baseline, gameID)
			}
		}
	}
	return calc.toScore(true)
}

// ComputeScorecard scores a raw scorecard against the known environments.
// The best play of each game also feeds the per-tag aggregates.
func ComputeScorecard(sc *Scorecard, infos []EnvironmentInfo) *EnvironmentScorecard {
	infoByID := make(map[string]*EnvironmentInfo, len(infos))
	for i := range infos {
		infoByID[infos[i].GameID] = &infos[i]
	}

	tagsScores := make(map[string]*scoreCalculator)
	var games []EnvironmentScoreList

	for _, gameID := range sortedKeys(sc.Cards) {
		card := sc.Cards[gameID]
		bestIdx := -1
		bestLevels := -1
		for idx, levels := range card.LevelsCompleted {
			if levels > bestLevels {
				bestLevels = levels
				bestIdx = idx
			}
		}
		if bestIdx == -1 {
			continue
		}

		runs := make([]EnvironmentScore, 0, card.TotalPlays)
		for idx := range card.LevelsCompleted {
			if idx == bestIdx {
				runs = append(runs, scorePlay(card, gameID, idx, infoByID[gameID], tagsScores))
			} else {
				runs = append(runs, scorePlay(card, gameID, idx, infoByID[gameID], nil))
			}
		}
		games = append(games, EnvironmentScoreList{ID: gameID, Runs: runs})
	}

	avg := 0.0
	if len(games) > 0 {
		for i := range games {
			avg += games[i].Score()
		}
		avg /= float64(len(games))
	}

	var tagsList []EnvironmentScore
	for _, tag := range sortedKeys(tagsScores) {
		tagsList = append(tagsList, tagsScores[tag].toScore(false))
	}

	return &EnvironmentScorecard{
		SourceURL:  sc.SourceURL,
		Tags:       sc.Tags,
		Opaque:     sc.Opaque,
		CardID:     sc.CardID,
		Score:      avg,
		Games:      games,
		TagsScores: tagsList,
		OpenedAt:   sc.OpenedAt,
		LastUpdate: sc.LastUpdate,
	}
}
