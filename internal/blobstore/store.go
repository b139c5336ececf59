package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deepdive/api/internal/content"
	"deepdive/api/internal/metrics"
)

const (
	DocumentPrefix   = "deepdive-content-"
	DefaultChunkSize = 450000

	metaSuffix  = "-meta"
	chunkInfix  = "-chunk-"
	deleteLimit = 8
)

// Meta is the record written ahead of the chunks of a large document.
// TotalSize counts characters, not bytes.
type Meta struct {
	TopicID     string    `json:"topicId"`
	TotalChunks int       `json:"totalChunks"`
	TotalSize   int       `json:"totalSize"`
	Timestamp   time.Time `json:"timestamp"`
}

// Reassembly describes how a Get produced its result.
type Reassembly struct {
	Chunked      bool
	TotalChunks  int
	Missing      []int
	ExpectedSize int
	ActualSize   int
}

// Complete is false when a chunk was missing or the size disagrees with the metadata.
func (r Reassembly) Complete() bool {
	return len(r.Missing) == 0 && r.ExpectedSize == r.ActualSize
}

func SingleName(topicID string) string { return DocumentPrefix + topicID }

func MetaName(topicID string) string { return DocumentPrefix + topicID + metaSuffix }

func ChunkName(topicID string, index int) string {
	return DocumentPrefix + topicID + chunkInfix + strconv.Itoa(index)
}

type Store struct {
	backend   Backend
	chunkSize int
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Store)

// WithChunkSize sets the chunk threshold in characters.
func WithChunkSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log.With().Str("component", "blobstore").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		chunkSize: DefaultChunkSize,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ChunkSize() int {
	return s.chunkSize
}

// Split cuts text into pieces of at most size characters. Multi-byte
// sequences are never split.
func Split(text string, size int) []string {
	if size <= 0 || text == "" {
		return []string{text}
	}
	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	count, start := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, text[start:])
}

// Put stores content as a single document, or as metadata followed by
// chunks written in index order when it exceeds the chunk size. A failed
// chunk aborts the write; chunks already stored are left behind. Once the
// new form is stored, the other form is removed so it cannot shadow it.
func (s *Store) Put(ctx context.Context, topicID, text string) error {
	size := utf8.RuneCountInString(text)
	if size <= s.chunkSize {
		if err := s.backend.Put(ctx, SingleName(topicID), contentTypeMarkdown, []byte(text)); err != nil {
			return fmt.Errorf("put document %s: %w", topicID, err)
		}
		if n, err := s.removeChunked(ctx, topicID); err != nil {
			s.log.Warn().Err(err).Str("topic", topicID).Msg("stale chunked document not removed")
		} else if n > 0 {
			s.log.Debug().Str("topic", topicID).Int("chunks", n).Msg("removed superseded chunked document")
		}
		s.log.Debug().Str("topic", topicID).Int("chars", size).Msg("stored single document")
		return nil
	}

	// Zero when there is no earlier chunked form.
	previous, _ := s.readMeta(ctx, topicID)

	chunks := Split(text, s.chunkSize)
	meta := Meta{
		TopicID:     topicID,
		TotalChunks: len(chunks),
		TotalSize:   size,
		Timestamp:   s.now().UTC(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode chunk metadata: %w", err)
	}
	if err := s.backend.Put(ctx, MetaName(topicID), contentTypeJSON, raw); err != nil {
		return fmt.Errorf("put chunk metadata %s: %w", topicID, err)
	}
	for i, chunk := range chunks {
		if err := s.backend.Put(ctx, ChunkName(topicID, i), contentTypeChunk, []byte(chunk)); err != nil {
			return fmt.Errorf("put chunk %d/%d of %s: %w", i+1, len(chunks), topicID, err)
		}
		s.log.Debug().Str("topic", topicID).Int("chunk", i).Int("chunks", len(chunks)).Msg("stored chunk")
	}

	// Reads try the single document first.
	if err := s.backend.Delete(ctx, SingleName(topicID)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("remove superseded document %s: %w", topicID, err)
	}
	for i := len(chunks); i < previous.TotalChunks; i++ {
		if err := s.backend.Delete(ctx, ChunkName(topicID, i)); err != nil && !errors.Is(err, ErrNotFound) {
			s.log.Warn().Err(err).Str("topic", topicID).Int("chunk", i).Msg("orphaned chunk not removed")
		}
	}
	s.log.Info().Str("topic", topicID).Int("chunks", len(chunks)).Int("chars", size).Msg("stored chunked document")
	return nil
}

// Get returns the document for topicID. Missing forms wrap both
// content.ErrNotFound and ErrNotFound.
func (s *Store) Get(ctx context.Context, topicID string) (string, error) {
	text, _, err := s.GetWithReport(ctx, topicID)
	return text, err
}

// GetWithReport reads the single document first and falls back to the
// chunked form only when the single document does not exist. A chunk that
// cannot be fetched contributes an empty string, so the result may be
// shorter than the recorded size; the report says which chunks were lost.
func (s *Store) GetWithReport(ctx context.Context, topicID string) (string, Reassembly, error) {
	raw, err := s.backend.Get(ctx, SingleName(topicID))
	if err == nil {
		text := string(raw)
		n := utf8.RuneCountInString(text)
		return text, Reassembly{ExpectedSize: n, ActualSize: n}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", Reassembly{}, fmt.Errorf("get document %s: %w", topicID, err)
	}

	meta, err := s.readMeta(ctx, topicID)
	if err != nil {
		return "", Reassembly{}, err
	}

	report := Reassembly{Chunked: true, TotalChunks: meta.TotalChunks, ExpectedSize: meta.TotalSize}
	var b strings.Builder
	for i := 0; i < meta.TotalChunks; i++ {
		chunk, err := s.backend.Get(ctx, ChunkName(topicID, i))
		if err != nil {
			report.Missing = append(report.Missing, i)
			metrics.ChunksMissing.Inc()
			s.log.Error().Err(err).Str("topic", topicID).Int("chunk", i).Msg("chunk unavailable, substituting empty chunk")
			continue
		}
		b.Write(chunk)
	}
	text := b.String()
	report.ActualSize = utf8.RuneCountInString(text)
	if report.ActualSize != report.ExpectedSize {
		metrics.ChunkMismatches.Inc()
		s.log.Warn().
			Str("topic", topicID).
			Int("expected", report.ExpectedSize).
			Int("actual", report.ActualSize).
			Ints("missing", report.Missing).
			Msg("reassembled size mismatch")
	}
	return text, report, nil
}

func (s *Store) readMeta(ctx context.Context, topicID string) (Meta, error) {
	raw, err := s.backend.Get(ctx, MetaName(topicID))
	if errors.Is(err, ErrNotFound) {
		return Meta{}, fmt.Errorf("document %s: %w: %w", topicID, content.ErrNotFound, ErrNotFound)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("get chunk metadata %s: %w", topicID, err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("decode chunk metadata %s: %w", topicID, err)
	}
	if meta.TotalChunks < 0 {
		return Meta{}, fmt.Errorf("chunk metadata %s: negative chunk count %d", topicID, meta.TotalChunks)
	}
	return meta, nil
}

// Delete removes the single document and, when metadata exists, every chunk
// and then the metadata. Failures are collected, nothing is rolled back.
func (s *Store) Delete(ctx context.Context, topicID string) error {
	var result *multierror.Error
	if err := s.backend.Delete(ctx, SingleName(topicID)); err != nil && !errors.Is(err, ErrNotFound) {
		result = multierror.Append(result, fmt.Errorf("delete document %s: %w", topicID, err))
	}
	chunks, err := s.removeChunked(ctx, topicID)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	if chunks > 0 {
		s.log.Info().Str("topic", topicID).Int("chunks", chunks).Msg("deleted chunked document")
	}
	return nil
}

// removeChunked deletes every chunk of topicID concurrently and then its
// metadata. It returns the chunk count the metadata recorded, zero when
// there was none.
func (s *Store) removeChunked(ctx context.Context, topicID string) (int, error) {
	meta, err := s.readMeta(ctx, topicID)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	collect := func(err error) {
		mu.Lock()
		result = multierror.Append(result, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteLimit)
	for i := 0; i < meta.TotalChunks; i++ {
		name := ChunkName(topicID, i)
		g.Go(func() error {
			if err := s.backend.Delete(gctx, name); err != nil && !errors.Is(err, ErrNotFound) {
				collect(fmt.Errorf("delete %s: %w", name, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.backend.Delete(ctx, MetaName(topicID)); err != nil && !errors.Is(err, ErrNotFound) {
		collect(fmt.Errorf("delete chunk metadata %s: %w", topicID, err))
	}
	return meta.TotalChunks, result.ErrorOrNil()
}

// List returns the topics that have a single or chunked document, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.backend.List(ctx, DocumentPrefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		topic := strings.TrimPrefix(name, DocumentPrefix)
		if isChunkName(topic) {
			continue
		}
		topic = strings.TrimSuffix(topic, metaSuffix)
		if topic != "" {
			seen[topic] = struct{}{}
		}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}

func isChunkName(name string) bool {
	i := strings.LastIndex(name, chunkInfix)
	if i < 0 {
		return false
	}
	_, err := strconv.Atoi(name[i+len(chunkInfix):])
	return err == nil
}
