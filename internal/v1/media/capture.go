package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/metrics"
	"github.com/sumedhnvda/GM-uni/internal/v1/signaling"
)

const (
	videoFrameInterval = 500 * time.Millisecond
	jpegQuality        = 50

	MimeAudioPCM  = "audio/pcm"
	MimeImageJPEG = "image/jpeg"
)

// ErrNoDevice is returned when a stream has no source for the requested
// kind, or the source was stopped.
var ErrNoDevice = errors.New("no capture device available")

// Gates are the caller-controlled mute and video toggles. They gate the
// pumps without any state transition: flipping one takes effect on the next
// block or tick.
type Gates struct {
	muted        atomic.Bool
	videoEnabled atomic.Bool
}

// NewGates starts unmuted with video enabled.
func NewGates() *Gates {
	g := &Gates{}
	g.videoEnabled.Store(true)
	return g
}

func (g *Gates) SetMuted(muted bool)          { g.muted.Store(muted) }
func (g *Gates) Muted() bool                  { return g.muted.Load() }
func (g *Gates) SetVideoEnabled(enabled bool) { g.videoEnabled.Store(enabled) }
func (g *Gates) VideoEnabled() bool           { return g.videoEnabled.Load() }

// ChunkSender transmits one capture chunk upstream.
type ChunkSender func(chunk signaling.MediaChunk)

// PumpAudio forwards capture blocks until the context is cancelled or the
// source fails. While muted, blocks are read and discarded: nothing is
// encoded and nothing is transmitted, so a muted caller leaks no audio.
func PumpAudio(ctx context.Context, stream *MediaStream, gates *Gates, send ChunkSender) error {
	for {
		block, err := stream.ReadAudioBlock()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrNoDevice) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if gates.Muted() {
			continue
		}

		pcm := Float32ToPCM16(block)
		send(signaling.MediaChunk{
			MimeType: MimeAudioPCM,
			Data:     base64.StdEncoding.EncodeToString(pcm),
		})
		metrics.MediaChunks.WithLabelValues(MimeAudioPCM).Inc()
	}
}

// PumpVideo snapshots a frame on a fixed cadence. Disabled video skips the
// grab entirely; a failed grab is logged and the cadence continues.
func PumpVideo(ctx context.Context, stream *MediaStream, gates *Gates, send ChunkSender) error {
	ticker := time.NewTicker(videoFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !gates.VideoEnabled() {
				continue
			}
			frame, err := stream.GrabFrame(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrNoDevice) {
					return nil
				}
				logging.Warn(ctx, "frame grab failed", zap.Error(err))
				continue
			}

			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
				logging.Warn(ctx, "frame encode failed", zap.Error(err))
				continue
			}
			send(signaling.MediaChunk{
				MimeType: MimeImageJPEG,
				Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
			})
			metrics.MediaChunks.WithLabelValues(MimeImageJPEG).Inc()
		}
	}
}
