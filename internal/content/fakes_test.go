package content

import (
	"context"
	"sync"
)

type fakeBlob struct {
	mu      sync.Mutex
	items   map[string]string
	getErr  error
	putErr  error
	gets    int
	deleted []string
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{items: map[string]string{}}
}

func (f *fakeBlob) Put(_ context.Context, topicID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.items[topicID] = content
	return nil
}

func (f *fakeBlob) Get(_ context.Context, topicID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return "", f.getErr
	}
	text, ok := f.items[topicID]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func (f *fakeBlob) Delete(_ context.Context, topicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, topicID)
	f.deleted = append(f.deleted, topicID)
	return nil
}

type fakeBackup struct {
	mu     sync.Mutex
	items  map[string]Revision
	getErr error
	putErr error
}

func newFakeBackup() *fakeBackup {
	return &fakeBackup{items: map[string]Revision{}}
}

func (f *fakeBackup) Put(_ context.Context, topicID, revisionID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.items[topicID] = Revision{TopicID: topicID, RevisionID: revisionID, Content: content}
	return nil
}

func (f *fakeBackup) Get(_ context.Context, topicID string) (Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Revision{}, f.getErr
	}
	rev, ok := f.items[topicID]
	if !ok {
		return Revision{}, ErrNotFound
	}
	return rev, nil
}

func (f *fakeBackup) Delete(_ context.Context, topicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, topicID)
	return nil
}

type latestCall struct {
	topicID    string
	revisionID string
}

type fakeLog struct {
	mu        sync.Mutex
	entries   []Revision
	appendErr error
	latestErr error
	calls     []latestCall
}

func (f *fakeLog) Append(_ context.Context, rev Revision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, rev)
	return nil
}

func (f *fakeLog) Latest(_ context.Context, topicID, revisionID string) (Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, latestCall{topicID: topicID, revisionID: revisionID})
	if f.latestErr != nil {
		return Revision{}, f.latestErr
	}
	for i := len(f.entries) - 1; i >= 0; i-- {
		entry := f.entries[i]
		if entry.TopicID != topicID {
			continue
		}
		if revisionID != "" && entry.RevisionID != revisionID {
			continue
		}
		return entry, nil
	}
	return Revision{}, ErrNotFound
}

type fakeRegistry struct {
	mu      sync.Mutex
	current map[string]string
	setErr  error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{current: map[string]string{}}
}

func (f *fakeRegistry) Current(_ context.Context, topicID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.current[topicID]
	return id, ok
}

func (f *fakeRegistry) Set(_ context.Context, topicID, revisionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.current[topicID] = revisionID
	return nil
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[string]string
	deleted []string
}

func (f *fakeIndexer) IndexTopic(topicID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]string{}
	}
	f.indexed[topicID] = content
}

func (f *fakeIndexer) DeleteTopic(topicID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, topicID)
}
