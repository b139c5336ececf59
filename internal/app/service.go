package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"deepdive/api/internal/auth"
	"deepdive/api/internal/authpw"
	"deepdive/api/internal/catalog"
	"deepdive/api/internal/content"
	"deepdive/api/internal/progress"
	"deepdive/api/internal/rbac"
	"deepdive/api/internal/search"
	"deepdive/api/internal/store"
	"deepdive/api/internal/theme"
	"deepdive/api/internal/util"
)

type Session struct {
	Token     string
	ViewerID  string
	Name      string
	Role      rbac.Role
	JTI       string
	ExpiresAt time.Time
}

// BlobIndex lists the topics held by the document blob store.
type BlobIndex interface {
	List(ctx context.Context) ([]string, error)
}

type HistorySource interface {
	History(ctx context.Context, topicID string, limit int) ([]store.RevisionSummary, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type Revocations interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ReadyCheck is one dependency probed by /api/ready.
type ReadyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps are the components the service is assembled from. Blobs, History,
// Search, Revocations and Checks may be left empty.
type Deps struct {
	Resolver    *content.Resolver
	Blobs       BlobIndex
	History     HistorySource
	Themes      *theme.Service
	Catalog     *catalog.Catalog
	Progress    *progress.Service
	Search      Searcher
	Gate        *authpw.Gate
	Signer      *auth.Signer
	Revocations Revocations
	Checks      []ReadyCheck
	Logger      zerolog.Logger
}

type Service struct {
	resolver    *content.Resolver
	blobs       BlobIndex
	history     HistorySource
	themes      *theme.Service
	catalog     *catalog.Catalog
	progress    *progress.Service
	search      Searcher
	gate        *authpw.Gate
	signer      *auth.Signer
	revocations Revocations
	checks      []ReadyCheck
	log         zerolog.Logger
}

func New(deps Deps) *Service {
	return &Service{
		resolver:    deps.Resolver,
		blobs:       deps.Blobs,
		history:     deps.History,
		themes:      deps.Themes,
		catalog:     deps.Catalog,
		progress:    deps.Progress,
		search:      deps.Search,
		gate:        deps.Gate,
		signer:      deps.Signer,
		revocations: deps.Revocations,
		checks:      deps.Checks,
		log:         deps.Logger,
	}
}

// Login exchanges the shared password for a signed token. Viewers who give
// a name keep a stable id derived from it, so their progress follows them
// across sessions.
func (s *Service) Login(ctx context.Context, password, name string) (Session, error) {
	role, err := s.gate.Check(password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidPassword) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_PASSWORD", "Incorrect password", nil)
		}
		return Session{}, err
	}

	name = strings.TrimSpace(name)
	viewerID := util.NewID("viewer")
	if slug := util.Slug(name); slug != "" {
		viewerID = "viewer_" + slug
	}

	token, claims, err := s.signer.Issue(viewerID, name, role)
	if err != nil {
		return Session{}, err
	}
	s.log.Info().Str("viewer", viewerID).Str("role", string(role)).Msg("session started")
	return sessionFromClaims(token, claims), nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}
	return sessionFromClaims(token, claims), nil
}

func sessionFromClaims(token string, claims auth.Claims) Session {
	return Session{
		Token:     token,
		ViewerID:  claims.Sub,
		Name:      claims.Name,
		Role:      rbac.Normalize(claims.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if s.revocations == nil || session.JTI == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, session.JTI, session.ExpiresAt)
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// Ready pings every dependency and reports each outcome.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := make(map[string]any, len(s.checks))
	for _, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			ready = false
			checks[check.Name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[check.Name] = map[string]any{"status": "ok"}
	}
	return ready, checks
}

func (s *Service) Modules() []catalog.Module {
	return s.catalog.Modules()
}

func (s *Service) Topic(topicID string) (map[string]any, error) {
	topic, module, ok := s.catalog.Topic(topicID)
	if !ok {
		return nil, unknownTopic(topicID)
	}
	payload := map[string]any{
		"topic":  topic,
		"module": map[string]any{"id": module.ID, "title": module.Title},
	}
	if next, ok := s.catalog.NextModule(module.ID); ok {
		payload["nextModule"] = map[string]any{"id": next.ID, "title": next.Title}
	}
	if prev, ok := s.catalog.PreviousModule(module.ID); ok {
		payload["previousModule"] = map[string]any{"id": prev.ID, "title": prev.Title}
	}
	return payload, nil
}

type ContentView struct {
	TopicID    string       `json:"topicId"`
	Content    string       `json:"content"`
	RevisionID string       `json:"revisionId,omitempty"`
	Source     content.Tier `json:"source"`
}

func (s *Service) TopicContent(ctx context.Context, topicID string) (ContentView, error) {
	if !s.catalog.HasTopic(topicID) {
		return ContentView{}, unknownTopic(topicID)
	}
	found, err := s.resolver.Lookup(ctx, topicID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return ContentView{}, domainError(http.StatusNotFound, "NOT_FOUND", "No content has been uploaded for this topic", map[string]any{"topicId": topicID})
		}
		return ContentView{}, err
	}
	return ContentView{
		TopicID:    found.TopicID,
		Content:    found.Content,
		RevisionID: found.RevisionID,
		Source:     found.Source,
	}, nil
}

// UploadContent validates an admin upload and writes it to every tier. Tier
// failures are reported in the payload; the upload only fails on bad input.
func (s *Service) UploadContent(ctx context.Context, session Session, topicID, filename string, body []byte) (map[string]any, error) {
	if !s.catalog.HasTopic(topicID) {
		return nil, unknownTopic(topicID)
	}
	if len(body) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "EMPTY_CONTENT", "Upload is empty", nil)
	}
	if err := content.ValidateText(filename, body); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "NOT_TEXT", "Please upload a text file (.txt, .md)", map[string]any{"filename": filename})
	}

	result, err := s.resolver.Write(ctx, topicID, string(body))
	if err != nil {
		return nil, fmt.Errorf("write topic content: %w", err)
	}
	s.log.Info().
		Str("topic", topicID).
		Str("revision", result.RevisionID).
		Str("viewer", session.ViewerID).
		Str("filename", filename).
		Msg("content uploaded")

	return map[string]any{
		"topicId":    topicID,
		"revisionId": result.RevisionID,
		"chars":      utf8.RuneCount(body),
		"complete":   result.Err() == nil,
		"tiers":      result.Summary(),
	}, nil
}

func (s *Service) DeleteContent(ctx context.Context, session Session, topicID string) (map[string]any, error) {
	if !s.catalog.HasTopic(topicID) {
		return nil, unknownTopic(topicID)
	}
	result, err := s.resolver.Delete(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("delete topic content: %w", err)
	}
	s.log.Info().Str("topic", topicID).Str("viewer", session.ViewerID).Msg("content removed")
	return map[string]any{
		"topicId":  topicID,
		"complete": result.Err() == nil,
		"tiers":    result.Summary(),
	}, nil
}

func (s *Service) Revisions(ctx context.Context, topicID string, limit int) ([]store.RevisionSummary, error) {
	if !s.catalog.HasTopic(topicID) {
		return nil, unknownTopic(topicID)
	}
	if s.history == nil {
		return []store.RevisionSummary{}, nil
	}
	items, err := s.history.History(ctx, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("load revision history: %w", err)
	}
	return items, nil
}

func (s *Service) StoredTopics(ctx context.Context) ([]string, error) {
	if s.blobs == nil {
		return []string{}, nil
	}
	topics, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored topics: %w", err)
	}
	return topics, nil
}

func (s *Service) Theme(ctx context.Context) map[string]any {
	return map[string]any{"themeId": s.themes.Get(ctx), "themes": theme.All()}
}

func (s *Service) SetTheme(ctx context.Context, session Session, themeID string) (map[string]any, error) {
	setBy := session.Name
	if setBy == "" {
		setBy = session.ViewerID
	}
	if err := s.themes.Set(ctx, themeID, setBy); err != nil {
		if errors.Is(err, theme.ErrUnknownTheme) {
			return nil, domainError(http.StatusUnprocessableEntity, "UNKNOWN_THEME", "Unknown theme", map[string]any{"themeId": themeID})
		}
		return nil, err
	}
	return map[string]any{"themeId": themeID}, nil
}

func (s *Service) Progress(ctx context.Context, session Session) (progress.Summary, error) {
	return s.progress.Get(ctx, session.ViewerID)
}

func (s *Service) MoveTo(ctx context.Context, session Session, pos progress.Position) (progress.Summary, error) {
	return s.progress.Move(ctx, session.ViewerID, pos)
}

func (s *Service) ResetProgress(ctx context.Context, session Session) error {
	return s.progress.Reset(ctx, session.ViewerID)
}

func (s *Service) Bookmarks(ctx context.Context, session Session, moduleID string) ([]progress.Bookmark, error) {
	return s.progress.Bookmarks(ctx, session.ViewerID, moduleID)
}

func (s *Service) ToggleBookmark(ctx context.Context, session Session, topicID string) (map[string]any, error) {
	added, err := s.progress.ToggleBookmark(ctx, session.ViewerID, topicID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"topicId": topicID, "bookmarked": added}, nil
}

func (s *Service) SetNote(ctx context.Context, session Session, topicID, note string) (progress.Summary, error) {
	return s.progress.SetNote(ctx, session.ViewerID, topicID, note)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}
