// Package progress tracks per-viewer presentation state: the current
// position, completed topics, notes and bookmarks. The JSON shapes match the
// ones the browser client keeps in local storage, so either side can seed
// the other.
package progress

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"deepdive/api/internal/catalog"
)

const (
	StorageKey   = "deepdive-user-progress"
	BookmarksKey = StorageKey + "-bookmarks"
)

// TopicSet is a set of topic ids encoded as a JSON array.
type TopicSet map[string]struct{}

func (s TopicSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s TopicSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s TopicSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TopicSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(TopicSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*s = set
	return nil
}

type Progress struct {
	CurrentModule   string            `json:"currentModule"`
	CurrentTopic    *string           `json:"currentTopic"`
	CompletedTopics TopicSet          `json:"completedTopics"`
	Notes           map[string]string `json:"notes"`
	LastAccessed    time.Time         `json:"lastAccessed"`
}

type Bookmark struct {
	TopicID  string    `json:"topicId"`
	ModuleID string    `json:"moduleId"`
	Title    string    `json:"title"`
	AddedAt  time.Time `json:"addedAt"`
	Note     string    `json:"note,omitempty"`
}

// State is everything persisted for one viewer.
type State struct {
	Progress  Progress   `json:"progress"`
	Bookmarks []Bookmark `json:"bookmarks"`
}

// NewState returns an empty state positioned on the first topic of the
// first module.
func NewState(cat *catalog.Catalog) State {
	s := State{
		Progress: Progress{
			CompletedTopics: TopicSet{},
			Notes:           map[string]string{},
		},
		Bookmarks: []Bookmark{},
	}
	if modules := cat.Modules(); len(modules) > 0 {
		s.Progress.CurrentModule = modules[0].ID
		if len(modules[0].Topics) > 0 {
			first := modules[0].Topics[0].ID
			s.Progress.CurrentTopic = &first
		}
	}
	return s
}

// normalize fills nil collections left by older or partial documents.
func (s *State) normalize() {
	if s.Progress.CompletedTopics == nil {
		s.Progress.CompletedTopics = TopicSet{}
	}
	if s.Progress.Notes == nil {
		s.Progress.Notes = map[string]string{}
	}
	if s.Bookmarks == nil {
		s.Bookmarks = []Bookmark{}
	}
}

// Visit moves the viewer to topic and marks it completed.
func (s *State) Visit(topic catalog.Topic, now time.Time) {
	id := topic.ID
	s.Progress.CurrentModule = topic.ModuleID
	s.Progress.CurrentTopic = &id
	s.Progress.CompletedTopics[id] = struct{}{}
	s.Progress.LastAccessed = now
}

// EnterModule selects a module and its first topic, without completing it.
func (s *State) EnterModule(module catalog.Module, now time.Time) {
	s.Progress.CurrentModule = module.ID
	s.Progress.CurrentTopic = nil
	if len(module.Topics) > 0 {
		first := module.Topics[0].ID
		s.Progress.CurrentTopic = &first
	}
	s.Progress.LastAccessed = now
}

// ToggleBookmark adds a bookmark for topic, or removes the existing one.
// It reports whether the topic is bookmarked afterwards.
func (s *State) ToggleBookmark(topic catalog.Topic, now time.Time) bool {
	for i, b := range s.Bookmarks {
		if b.TopicID == topic.ID {
			s.Bookmarks = append(s.Bookmarks[:i], s.Bookmarks[i+1:]...)
			return false
		}
	}
	s.Bookmarks = append(s.Bookmarks, Bookmark{
		TopicID:  topic.ID,
		ModuleID: topic.ModuleID,
		Title:    topic.Title,
		AddedAt:  now,
		Note:     s.Progress.Notes[topic.ID],
	})
	return true
}

func (s *State) IsBookmarked(topicID string) bool {
	for _, b := range s.Bookmarks {
		if b.TopicID == topicID {
			return true
		}
	}
	return false
}

// SetNote stores a note and copies it onto the topic's bookmark, if any.
// An empty note removes it.
func (s *State) SetNote(topicID, note string) {
	if note == "" {
		delete(s.Progress.Notes, topicID)
	} else {
		s.Progress.Notes[topicID] = note
	}
	for i := range s.Bookmarks {
		if s.Bookmarks[i].TopicID == topicID {
			s.Bookmarks[i].Note = note
		}
	}
}

// ModuleProgress returns the rounded completion percentage of every module.
func ModuleProgress(cat *catalog.Catalog, completed TopicSet) map[string]int {
	out := make(map[string]int)
	for _, m := range cat.Modules() {
		if len(m.Topics) == 0 {
			out[m.ID] = 0
			continue
		}
		done := 0
		for _, t := range m.Topics {
			if completed.Has(t.ID) {
				done++
			}
		}
		out[m.ID] = int(math.Round(float64(done) / float64(len(m.Topics)) * 100))
	}
	return out
}

// RemainingMinutes sums the durations of the module's uncompleted topics.
func RemainingMinutes(cat *catalog.Catalog, moduleID string, completed TopicSet) int {
	total := 0
	for _, t := range cat.Topics(moduleID) {
		if !completed.Has(t.ID) {
			total += t.Duration
		}
	}
	return total
}
