// Package recorder writes published RTMP streams to FLV files.
package recorder

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	rtmp "github.com/torresjeff/rtmp-ingest"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/audio"
	"github.com/torresjeff/rtmp-ingest/flv"
	"github.com/torresjeff/rtmp-ingest/video"
	"go.uber.org/zap"
)

// Offset and bits of the type flags byte in the FLV file header.
const (
	flagsOffset = 4
	flagAudio   = 0x04
	flagVideo   = 0x01
)

// Recorder hands out one rtmp.Handler per session. Every publish on those sessions is written
// to <Dir>/<app>_<name>_<id>.flv, where id is a snowflake id unique to the recording.
type Recorder struct {
	dir    string
	node   *snowflake.Node
	logger *zap.Logger
	next   rtmp.HandlerFactory

	mu     sync.Mutex
	files  map[fileKey]*recording
	closed bool
}

type fileKey struct {
	sessionID string
	streamID  uint32
}

// New returns a Recorder writing under dir. next, if not nil, builds the handler every session
// handler delegates to after recording; its OnPublish runs first and may deny the publish.
func New(logger *zap.Logger, dir string, nodeID int64, next rtmp.HandlerFactory) (*Recorder, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrapf(err, "recorder: node %d", nodeID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "recorder: creating %s", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		dir:    dir,
		node:   node,
		logger: logger,
		next:   next,
		files:  make(map[fileKey]*recording),
	}, nil
}

// NewHandler has the signature of rtmp.HandlerFactory.
func (r *Recorder) NewHandler(sessionID string, remoteAddr net.Addr) rtmp.Handler {
	h := &sessionHandler{recorder: r, sessionID: sessionID}
	if r.next != nil {
		h.next = r.next(sessionID, remoteAddr)
	}
	return h
}

// Paths returns the files currently being written.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.files))
	for _, rec := range r.files {
		paths = append(paths, rec.path)
	}
	return paths
}

// Close flushes and closes every open recording. Publishes that start afterwards are denied.
func (r *Recorder) Close() error {
	r.mu.Lock()
	files := r.files
	r.files = make(map[fileKey]*recording)
	r.closed = true
	r.mu.Unlock()

	var firstErr error
	for _, rec := range files {
		if err := rec.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Recorder) open(key fileKey, app, name string) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("recorder: closed")
	}
	if _, ok := r.files[key]; ok {
		return nil, errors.Errorf("recorder: stream %d of session %s is already recording", key.streamID, key.sessionID)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s_%s.flv", sanitize(app), sanitize(name), r.node.Generate()))
	rec, err := create(path)
	if err != nil {
		return nil, err
	}
	r.files[key] = rec
	return rec, nil
}

func (r *Recorder) lookup(key fileKey) *recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[key]
}

func (r *Recorder) remove(key fileKey) *recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.files[key]
	delete(r.files, key)
	return rec
}

// sanitize keeps a publishing name from escaping the recording directory.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', 0:
			return '_'
		}
		return r
	}, s)
}

type sessionHandler struct {
	recorder  *Recorder
	sessionID string
	next      rtmp.Handler
}

func (h *sessionHandler) OnPublish(ctx context.Context, streamID uint32, app, name string) error {
	if h.next != nil {
		if err := h.next.OnPublish(ctx, streamID, app, name); err != nil {
			return err
		}
	}
	rec, err := h.recorder.open(fileKey{h.sessionID, streamID}, app, name)
	if err != nil {
		if h.next != nil {
			_ = h.next.OnUnpublish(ctx, streamID)
		}
		return err
	}
	h.recorder.logger.Info("recording started",
		zap.String("session", h.sessionID), zap.String("app", app), zap.String("name", name), zap.String("path", rec.path))
	return nil
}

func (h *sessionHandler) OnUnpublish(ctx context.Context, streamID uint32) error {
	var err error
	if rec := h.recorder.remove(fileKey{h.sessionID, streamID}); rec != nil {
		err = rec.close()
		h.recorder.logger.Info("recording finished",
			zap.String("session", h.sessionID), zap.String("path", rec.path), zap.Int("tags", rec.tags), zap.Error(err))
	}
	if h.next != nil {
		if nextErr := h.next.OnUnpublish(ctx, streamID); err == nil {
			err = nextErr
		}
	}
	return err
}

func (h *sessionHandler) OnData(ctx context.Context, streamID uint32, data rtmp.SessionData) error {
	if rec := h.recorder.lookup(fileKey{h.sessionID, streamID}); rec != nil {
		if err := rec.write(h.recorder.logger, data); err != nil {
			return err
		}
	}
	if h.next != nil {
		return h.next.OnData(ctx, streamID, data)
	}
	return nil
}

type recording struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	buf   *bufio.Writer
	flv   *flv.Writer
	flags byte
	tags  int
	done  bool

	audioSeen bool
	videoSeen bool
}

func create(path string) (*recording, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "recorder: creating file")
	}
	rec := &recording{path: path, file: f, buf: bufio.NewWriter(f)}
	rec.flv = flv.NewWriter(rec.buf)
	// The audio and video flags are patched in once the first tag of each kind arrives.
	if err := rec.flv.WriteHeader(flv.Header{Version: 1}); err != nil {
		f.Close()
		return nil, err
	}
	if err := rec.buf.Flush(); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "recorder: writing header")
	}
	return rec, nil
}

func (rec *recording) write(logger *zap.Logger, data rtmp.SessionData) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.done {
		return nil
	}
	tag := &flv.Tag{Timestamp: data.Timestamp, Data: data.Payload}
	switch data.Kind {
	case rtmp.AudioData:
		tag.Type = flv.TagTypeAudio
		if err := rec.setFlag(flagAudio); err != nil {
			return err
		}
		if !rec.audioSeen {
			if d, err := audio.Parse(data.Payload); err == nil && d.IsSequenceHeader() {
				rec.audioSeen = true
				logger.Debug("recording audio", zap.String("path", rec.path), zap.Uint8("format", uint8(d.Format)))
			}
		}
	case rtmp.VideoData:
		tag.Type = flv.TagTypeVideo
		if err := rec.setFlag(flagVideo); err != nil {
			return err
		}
		if !rec.videoSeen {
			if d, err := video.Parse(data.Payload); err == nil && d.IsSequenceHeader() {
				rec.videoSeen = true
				logger.Debug("recording video", zap.String("path", rec.path), zap.Uint8("codec", uint8(d.Codec)))
			}
		}
	case rtmp.Amf0Data:
		tag.Type = flv.TagTypeScriptData
		tag.Data = stripSetDataFrame(data.Payload)
		if sd, err := flv.ParseScriptData(data.Payload); err == nil && sd.Metadata != nil {
			logger.Info("stream metadata",
				zap.String("path", rec.path),
				zap.Float64("width", sd.Metadata.Width),
				zap.Float64("height", sd.Metadata.Height),
				zap.Float64("framerate", sd.Metadata.FrameRate))
		}
	default:
		return nil
	}

	if err := rec.flv.WriteTag(tag); err != nil {
		return errors.Wrapf(err, "recorder: writing %s", rec.path)
	}
	rec.tags++
	return nil
}

func (rec *recording) setFlag(flag byte) error {
	if rec.flags&flag != 0 {
		return nil
	}
	rec.flags |= flag
	if _, err := rec.file.WriteAt([]byte{rec.flags}, flagsOffset); err != nil {
		return errors.Wrapf(err, "recorder: updating header of %s", rec.path)
	}
	return nil
}

func (rec *recording) close() error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.done {
		return nil
	}
	rec.done = true
	err := rec.buf.Flush()
	if cerr := rec.file.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "recorder: closing %s", rec.path)
}

// stripSetDataFrame drops the "@setDataFrame" name encoders put in front of onMetaData. The
// script tag stored in a file starts at onMetaData.
func stripSetDataFrame(payload []byte) []byte {
	d := amf0.NewDecoder(payload)
	if name, err := d.DecodeString(); err == nil && name == flv.SetDataFrame {
		return d.Remaining()
	}
	return payload
}
