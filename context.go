package rtmp

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrStreamNotFound = errors.New("StreamNotFound")
var ErrStreamAlreadyPublished = errors.New("StreamAlreadyPublished")

// Publisher describes one active publish.
type Publisher struct {
	SessionID   string    `json:"session_id"`
	StreamID    uint32    `json:"stream_id"`
	App         string    `json:"app"`
	Name        string    `json:"name"`
	RemoteAddr  string    `json:"remote_addr"`
	StartedAt   time.Time `json:"started_at"`
	AudioBytes  uint64    `json:"audio_bytes"`
	AudioFrames uint64    `json:"audio_frames"`
	VideoBytes  uint64    `json:"video_bytes"`
	VideoFrames uint64    `json:"video_frames"`
	DataBytes   uint64    `json:"data_bytes"`
}

// ContextStore keeps track of the streams being published.
type ContextStore interface {
	RegisterPublisher(p Publisher) error
	// DestroyPublisher removes a publish and returns its final state.
	DestroyPublisher(sessionID string, streamID uint32) (Publisher, error)
	// DestroySession removes every publish of a session.
	DestroySession(sessionID string) []Publisher
	Record(sessionID string, streamID uint32, kind DataKind, size int) error
	Publishers() []Publisher
}

type publisherKey struct {
	sessionID string
	streamID  uint32
}

// InMemoryContext is a ContextStore for a single server process. Two sessions may not
// publish the same app and name at the same time.
type InMemoryContext struct {
	mu         sync.RWMutex
	publishers map[publisherKey]*Publisher
	names      map[string]publisherKey
}

func NewInMemoryContext() *InMemoryContext {
	return &InMemoryContext{
		publishers: make(map[publisherKey]*Publisher),
		names:      make(map[string]publisherKey),
	}
}

func streamName(app, name string) string {
	return app + "/" + name
}

func (c *InMemoryContext) RegisterPublisher(p Publisher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := publisherKey{p.SessionID, p.StreamID}
	if owner, exists := c.names[streamName(p.App, p.Name)]; exists && owner != key {
		return ErrStreamAlreadyPublished
	}
	if old, exists := c.publishers[key]; exists {
		delete(c.names, streamName(old.App, old.Name))
	}
	c.publishers[key] = &p
	c.names[streamName(p.App, p.Name)] = key
	return nil
}

func (c *InMemoryContext) DestroyPublisher(sessionID string, streamID uint32) (Publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyLocked(publisherKey{sessionID, streamID})
}

func (c *InMemoryContext) destroyLocked(key publisherKey) (Publisher, error) {
	p, exists := c.publishers[key]
	if !exists {
		return Publisher{}, ErrStreamNotFound
	}
	delete(c.publishers, key)
	delete(c.names, streamName(p.App, p.Name))
	return *p, nil
}

func (c *InMemoryContext) DestroySession(sessionID string) []Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []Publisher
	for key := range c.publishers {
		if key.sessionID != sessionID {
			continue
		}
		if p, err := c.destroyLocked(key); err == nil {
			removed = append(removed, p)
		}
	}
	sortPublishers(removed)
	return removed
}

func (c *InMemoryContext) Record(sessionID string, streamID uint32, kind DataKind, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, exists := c.publishers[publisherKey{sessionID, streamID}]
	if !exists {
		return ErrStreamNotFound
	}
	switch kind {
	case AudioData:
		p.AudioBytes += uint64(size)
		p.AudioFrames++
	case VideoData:
		p.VideoBytes += uint64(size)
		p.VideoFrames++
	default:
		p.DataBytes += uint64(size)
	}
	return nil
}

// Publishers returns a snapshot ordered by start time.
func (c *InMemoryContext) Publishers() []Publisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]Publisher, 0, len(c.publishers))
	for _, p := range c.publishers {
		list = append(list, *p)
	}
	sortPublishers(list)
	return list
}

func sortPublishers(list []Publisher) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.Before(list[j].StartedAt)
		}
		if list[i].SessionID != list[j].SessionID {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].StreamID < list[j].StreamID
	})
}
