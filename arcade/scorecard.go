package arcade

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcprize/arcade-go/arcengine"
)

// LevelMark records that a play reached a levels-completed count at a given
// total action count. Serialized as a two-element array on the wire.
type LevelMark struct {
	Level   int
	Actions int
}

// MarshalJSON / UnmarshalJSON keep the wire shape [level, actions].
func (m LevelMark) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{m.Level, m.Actions})
}

func (m *LevelMark) UnmarshalJSON(b []byte) error {
	var pair [2]int
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	m.Level, m.Actions = pair[0], pair[1]
	return nil
}

// Card tracks every play of a single game within one scorecard. A play is a
// full reset; its bookkeeping lives at the same index across the parallel
// slices. Entries are appended, never rewritten, until the owning scorecard
// closes.
type Card struct {
	GameID     string `json:"game_id"`
	TotalPlays int    `json:"total_plays"`

	Guids           []string              `json:"guids"`
	LevelsCompleted []int                 `json:"levels_completed"`
	States          []arcengine.GameState `json:"states"`
	Actions         []int                 `json:"actions"`
	ActionsByLevel  [][]LevelMark         `json:"actions_by_level"`
	Resets          []int                 `json:"resets"`
}

// Started reports whether the game has been played at least once.
func (c *Card) Started() bool { return c.TotalPlays > 0 }

// indexOfGuid finds the most recent play for a guid; guids can be reused
// across plays, so the scan runs backwards.
func (c *Card) indexOfGuid(guid string) int {
	for i := len(c.Guids) - 1; i >= 0; i-- {
		if c.Guids[i] == guid {
			return i
		}
	}
	return c.TotalPlays - 1
}

// IncPlay opens a new play for the guid.
func (c *Card) IncPlay(guid string) {
	c.TotalPlays++
	c.Guids = append(c.Guids, guid)
	c.LevelsCompleted = append(c.LevelsCompleted, 0)
	c.States = append(c.States, arcengine.StateInProgress)
	c.Actions = append(c.Actions, 0)
	c.Resets = append(c.Resets, 0)
	c.ActionsByLevel = append(c.ActionsByLevel, nil)
}

// IncReset counts a mid-play reset. A reset consumes an action.
func (c *Card) IncReset(guid string) {
	if !c.Started() {
		return
	}
	idx := c.indexOfGuid(guid)
	c.Resets[idx]++
	c.Actions[idx]++
}

// IncAction counts one gameplay action.
func (c *Card) IncAction(guid string) {
	if c.Started() {
		c.Actions[c.indexOfGuid(guid)]++
	}
}

// SetState records the play's latest state.
func (c *Card) SetState(guid string, state arcengine.GameState) {
	if c.Started() {
		c.States[c.indexOfGuid(guid)] = state
	}
}

// SetLevelsCompleted records level progress; a change appends a mark of the
// action count at which the level boundary was crossed.
func (c *Card) SetLevelsCompleted(guid string, levels int) {
	if !c.Started() {
		return
	}
	idx := c.indexOfGuid(guid)
	if levels != c.LevelsCompleted[idx] {
		c.ActionsByLevel[idx] = append(c.ActionsByLevel[idx], LevelMark{Level: levels, Actions: c.Actions[idx]})
	}
	c.LevelsCompleted[idx] = levels
}

// TotalActions sums actions across all plays.
func (c *Card) TotalActions() int {
	total := 0
	for _, a := range c.Actions {
		total += a
	}
	return total
}

// MostLevelsCompleted returns the best level count across plays.
func (c *Card) MostLevelsCompleted() int {
	best := 0
	for _, l := range c.LevelsCompleted {
		if l > best {
			best = l
		}
	}
	return best
}

// State returns the latest play's state, NOT_PLAYED when none exists.
func (c *Card) State() arcengine.GameState {
	if !c.Started() {
		return arcengine.StateNotPlayed
	}
	return c.States[c.TotalPlays-1]
}

// clone deep-copies the card's bookkeeping slices.
func (c *Card) clone() *Card {
	out := &Card{
		GameID:          c.GameID,
		TotalPlays:      c.TotalPlays,
		Guids:           append([]string(nil), c.Guids...),
		LevelsCompleted: append([]int(nil), c.LevelsCompleted...),
		States:          append([]arcengine.GameState(nil), c.States...),
		Actions:         append([]int(nil), c.Actions...),
		Resets:          append([]int(nil), c.Resets...),
	}
	out.ActionsByLevel = make([][]LevelMark, len(c.ActionsByLevel))
	for i, marks := range c.ActionsByLevel {
		out.ActionsByLevel[i] = append([]LevelMark(nil), marks...)
	}
	return out
}

// Scorecard aggregates cards for every game played under one id. Mutation
// happens only through UpdateFromFrame until Close finalizes it.
type Scorecard struct {
	Cards     map[string]*Card `json:"cards"`
	SourceURL string           `json:"source_url,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
	Opaque    any              `json:"opaque,omitempty"`
	CardID    string           `json:"card_id"`
	APIKey    string           `json:"-"`

	OpenedAt   time.Time `json:"-"`
	LastUpdate time.Time `json:"-"`
}

func (s *Scorecard) card(gameID string) *Card {
	card, ok := s.Cards[gameID]
	if !ok {
		card = &Card{GameID: gameID}
		s.Cards[gameID] = card
	}
	return card
}

// Won counts games with at least one winning play.
func (s *Scorecard) Won() int {
	n := 0
	for _, card := range s.Cards {
		for _, state := range card.States {
			if state == arcengine.StateWin {
				n++
				break
			}
		}
	}
	return n
}

// Played counts games with at least one play.
func (s *Scorecard) Played() int {
	n := 0
	for _, card := range s.Cards {
		if card.Started() {
			n++
		}
	}
	return n
}

// TotalActions sums actions across all cards.
func (s *Scorecard) TotalActions() int {
	total := 0
	for _, card := range s.Cards {
		total += card.TotalActions()
	}
	return total
}

// LevelsCompleted sums each card's best play.
func (s *Scorecard) LevelsCompleted() int {
	total := 0
	for _, card := range s.Cards {
		total += card.MostLevelsCompleted()
	}
	return total
}

// clone deep-copies the scorecard. UpdateFromFrame keeps mutating the live
// cards, so anything handed out of the manager lock must be a copy.
func (s *Scorecard) clone() *Scorecard {
	out := *s
	out.Tags = append([]string(nil), s.Tags...)
	out.Cards = make(map[string]*Card, len(s.Cards))
	for gameID, card := range s.Cards {
		out.Cards[gameID] = card.clone()
	}
	return &out
}

// UpdateFromFrame folds one step/reset outcome into the scorecard. A reset
// frame opens a new play (fullReset) or counts a mid-play reset; gameplay
// actions increment the action count; WIN/GAME_OVER stamp the state. The
// returned state is the play's state after the update.
func (s *Scorecard) UpdateFromFrame(guid string, frame *arcengine.Frame, fullReset bool) arcengine.GameState {
	card := s.card(frame.GameID)

	if frame.ActionInput != nil {
		// Play bookkeeping must precede state/level updates.
		if frame.ActionInput.ID == arcengine.ActionReset {
			if fullReset {
				card.IncPlay(guid)
			} else {
				card.IncReset(guid)
			}
		} else {
			card.IncAction(guid)
		}
	}
	switch frame.State {
	case arcengine.StateGameOver:
		card.SetState(guid, arcengine.StateGameOver)
	case arcengine.StateWin:
		card.SetState(guid, arcengine.StateWin)
	}
	card.SetLevelsCompleted(guid, frame.LevelsCompleted)

	s.LastUpdate = time.Now().UTC()

	if !card.Started() {
		return arcengine.StateNotPlayed
	}
	return card.States[card.indexOfGuid(guid)]
}

// ScorecardManager owns all open scorecards and the guid→card index. All
// mutation is serialized behind one lock: score updates do not commute, so
// concurrently stepped environments sharing a card must not interleave.
type ScorecardManager struct {
	mu         sync.Mutex
	scorecards map[string]*Scorecard
	guids      map[string]string
	staleAfter time.Duration
}

// NewScorecardManager creates an empty manager. staleAfter bounds how long
// an idle scorecard survives before StaleCards reports it.
func NewScorecardManager(staleAfter time.Duration) *ScorecardManager {
	if staleAfter <= 0 {
		staleAfter = defaultStaleMinutes * time.Minute
	}
	return &ScorecardManager{
		scorecards: make(map[string]*Scorecard),
		guids:      make(map[string]string),
		staleAfter: staleAfter,
	}
}

// SetIdleFor overrides the stale window.
func (m *ScorecardManager) SetIdleFor(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.staleAfter = d
	}
}

// New allocates a scorecard and returns its id.
func (m *ScorecardManager) New(sourceURL string, tags []string, apiKey string, opaque any) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cardID := uuid.NewString()
	now := time.Now().UTC()
	m.scorecards[cardID] = &Scorecard{
		Cards:      make(map[string]*Card),
		SourceURL:  sourceURL,
		Tags:       tags,
		Opaque:     opaque,
		CardID:     cardID,
		APIKey:     apiKey,
		OpenedAt:   now,
		LastUpdate: now,
	}
	return cardID
}

// Get returns a snapshot of the scorecard when the id exists and the key
// matches. The snapshot is a deep copy taken under the lock: readers score it
// at leisure while concurrent plays keep updating the live card.
func (m *ScorecardManager) Get(cardID, apiKey string) *Scorecard {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := m.scorecards[cardID]
	if sc == nil || sc.APIKey != apiKey {
		return nil
	}
	return sc.clone()
}

// Close removes the scorecard and unbinds its guids, returning the final
// snapshot and the guids that belonged to it. An empty apiKey skips the key
// check (used by the stale-card sweeper).
func (m *ScorecardManager) Close(cardID, apiKey string) (*Scorecard, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := m.scorecards[cardID]
	if sc == nil || (apiKey != "" && sc.APIKey != apiKey) {
		return nil, nil
	}
	var guids []string
	for _, card := range sc.Cards {
		guids = append(guids, card.Guids...)
	}
	delete(m.scorecards, cardID)
	for _, guid := range guids {
		delete(m.guids, guid)
	}
	return sc, guids
}

// AddGame binds an episode guid to a scorecard.
func (m *ScorecardManager) AddGame(cardID, guid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scorecards[cardID]; ok {
		m.guids[guid] = cardID
	}
}

// UpdateFromFrame routes a frame to the scorecard its guid is bound to.
func (m *ScorecardManager) UpdateFromFrame(guid string, frame *arcengine.Frame, fullReset bool) arcengine.GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cardID, ok := m.guids[guid]
	if !ok {
		return arcengine.StateNotPlayed
	}
	sc := m.scorecards[cardID]
	if sc == nil {
		return arcengine.StateNotPlayed
	}
	return sc.UpdateFromFrame(guid, frame, fullReset)
}

// StaleCards lists scorecards idle longer than the stale window.
func (m *ScorecardManager) StaleCards() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var stale []string
	for cardID, sc := range m.scorecards {
		if now.Sub(sc.LastUpdate) >= m.staleAfter {
			stale = append(stale, cardID)
		}
	}
	return stale
}
