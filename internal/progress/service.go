package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"deepdive/api/internal/catalog"
)

var ErrUnknownTopic = errors.New("unknown topic")
var ErrUnknownModule = errors.New("unknown module")

type Store interface {
	Load(ctx context.Context, viewerID string) (State, bool, error)
	Save(ctx context.Context, viewerID string, state State) error
}

// Summary is a State with the derived per-module figures attached.
type Summary struct {
	State
	ModuleProgress   map[string]int `json:"moduleProgress"`
	RemainingMinutes int            `json:"remainingMinutes"`
}

type Service struct {
	store   Store
	catalog *catalog.Catalog
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, cat *catalog.Catalog, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		log:     log,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) Get(ctx context.Context, viewerID string) (Summary, error) {
	state, err := s.load(ctx, viewerID)
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(state), nil
}

// Position is a navigation request: a topic, or a module to enter.
type Position struct {
	ModuleID string `json:"moduleId"`
	TopicID  string `json:"topicId"`
}

// Move navigates to a topic (marking it completed) or to the start of a module.
func (s *Service) Move(ctx context.Context, viewerID string, pos Position) (Summary, error) {
	return s.mutate(ctx, viewerID, func(state *State) error {
		now := s.now().UTC()
		if pos.TopicID != "" {
			topic, _, ok := s.catalog.Topic(pos.TopicID)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownTopic, pos.TopicID)
			}
			state.Visit(topic, now)
			return nil
		}
		module, ok := s.catalog.Module(pos.ModuleID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, pos.ModuleID)
		}
		state.EnterModule(module, now)
		return nil
	})
}

// Bookmarks returns the viewer's bookmarks, optionally limited to one module.
func (s *Service) Bookmarks(ctx context.Context, viewerID, moduleID string) ([]Bookmark, error) {
	state, err := s.load(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if moduleID == "" {
		return state.Bookmarks, nil
	}
	out := make([]Bookmark, 0)
	for _, b := range state.Bookmarks {
		if b.ModuleID == moduleID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) ToggleBookmark(ctx context.Context, viewerID, topicID string) (bool, error) {
	var added bool
	_, err := s.mutate(ctx, viewerID, func(state *State) error {
		topic, _, ok := s.catalog.Topic(topicID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
		}
		added = state.ToggleBookmark(topic, s.now().UTC())
		return nil
	})
	return added, err
}

func (s *Service) SetNote(ctx context.Context, viewerID, topicID, note string) (Summary, error) {
	return s.mutate(ctx, viewerID, func(state *State) error {
		if !s.catalog.HasTopic(topicID) {
			return fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
		}
		state.SetNote(topicID, note)
		return nil
	})
}

func (s *Service) load(ctx context.Context, viewerID string) (State, error) {
	state, found, err := s.store.Load(ctx, viewerID)
	if err != nil {
		return State{}, err
	}
	if !found {
		return NewState(s.catalog), nil
	}
	return state, nil
}

func (s *Service) mutate(ctx context.Context, viewerID string, fn func(*State) error) (Summary, error) {
	lock := s.viewerLock(viewerID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.load(ctx, viewerID)
	if err != nil {
		return Summary{}, err
	}
	if err := fn(&state); err != nil {
		return Summary{}, err
	}
	if err := s.store.Save(ctx, viewerID, state); err != nil {
		return Summary{}, err
	}
	s.log.Debug().Str("viewer", viewerID).Int("completed", len(state.Progress.CompletedTopics)).Msg("progress saved")
	return s.summarize(state), nil
}

func (s *Service) summarize(state State) Summary {
	return Summary{
		State:            state,
		ModuleProgress:   ModuleProgress(s.catalog, state.Progress.CompletedTopics),
		RemainingMinutes: RemainingMinutes(s.catalog, state.Progress.CurrentModule, state.Progress.CompletedTopics),
	}
}

func (s *Service) viewerLock(viewerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[viewerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[viewerID] = lock
	}
	return lock
}

type deleter interface {
	Delete(ctx context.Context, viewerID string) error
}

// Reset discards everything stored for the viewer.
func (s *Service) Reset(ctx context.Context, viewerID string) error {
	lock := s.viewerLock(viewerID)
	lock.Lock()
	defer lock.Unlock()

	d, ok := s.store.(deleter)
	if !ok {
		return s.store.Save(ctx, viewerID, NewState(s.catalog))
	}
	return d.Delete(ctx, viewerID)
}
