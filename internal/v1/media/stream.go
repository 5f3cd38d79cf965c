package media

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
)

// TrackKind distinguishes audio and video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// AudioSource delivers normalized sample blocks from a capture device.
type AudioSource interface {
	// ReadBlock blocks until the next capture block is available.
	ReadBlock() ([]float32, error)
	Close() error
}

// VideoSource delivers frames from a capture device.
type VideoSource interface {
	Grab(ctx context.Context) (image.Image, error)
	Close() error
}

// Track is a stoppable handle over one capture device. Stopping a track
// releases the underlying device; on hardware with an indicator LED this is
// what turns the light off.
type Track struct {
	id   string
	kind TrackKind
	stop func()
	once sync.Once
}

// NewTrack wraps a stop function in a track handle.
func NewTrack(kind TrackKind, stop func()) *Track {
	return &Track{id: uuid.NewString(), kind: kind, stop: stop}
}

func (t *Track) ID() string      { return t.id }
func (t *Track) Kind() TrackKind { return t.kind }

// Stop releases the device. Idempotent.
func (t *Track) Stop() {
	t.once.Do(func() {
		if t.stop != nil {
			t.stop()
		}
	})
}

// MediaStream owns one audio and one video capture pair. Pumps read through
// the stream rather than holding a source directly, so a camera switch can
// splice in a new video source mid-flight without restarting the pumps.
type MediaStream struct {
	mu       sync.Mutex
	audio    *Track
	video    *Track
	audioSrc AudioSource
	videoSrc VideoSource
}

// NewMediaStream assembles a stream over already-open sources. Either side
// may be nil for audio-only or video-only sessions.
func NewMediaStream(audioSrc AudioSource, videoSrc VideoSource) *MediaStream {
	s := &MediaStream{audioSrc: audioSrc, videoSrc: videoSrc}
	if audioSrc != nil {
		s.audio = NewTrack(TrackKindAudio, func() { _ = audioSrc.Close() })
	}
	if videoSrc != nil {
		s.video = NewTrack(TrackKindVideo, func() { _ = videoSrc.Close() })
	}
	return s
}

// AudioTrack returns the audio track handle, or nil.
func (s *MediaStream) AudioTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// VideoTrack returns the current video track handle, or nil.
func (s *MediaStream) VideoTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

// ReadAudioBlock reads the next block from the current audio source.
func (s *MediaStream) ReadAudioBlock() ([]float32, error) {
	s.mu.Lock()
	src := s.audioSrc
	s.mu.Unlock()
	if src == nil {
		return nil, ErrNoDevice
	}
	return src.ReadBlock()
}

// GrabFrame grabs the next frame from the current video source.
func (s *MediaStream) GrabFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	src := s.videoSrc
	s.mu.Unlock()
	if src == nil {
		return nil, ErrNoDevice
	}
	return src.Grab(ctx)
}

// ReplaceVideoSource stops the current video track and splices in a new
// source. The audio track is untouched: a camera switch must never glitch
// the microphone.
func (s *MediaStream) ReplaceVideoSource(src VideoSource) {
	s.mu.Lock()
	old := s.video
	s.videoSrc = src
	s.video = NewTrack(TrackKindVideo, func() { _ = src.Close() })
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// StopAll stops every track synchronously. Called during call teardown;
// must complete before the session reports ended.
func (s *MediaStream) StopAll() {
	s.mu.Lock()
	audio, video := s.audio, s.video
	s.audio, s.video = nil, nil
	s.audioSrc, s.videoSrc = nil, nil
	s.mu.Unlock()
	if video != nil {
		video.Stop()
	}
	if audio != nil {
		audio.Stop()
	}
}
