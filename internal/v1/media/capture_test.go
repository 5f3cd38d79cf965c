package media

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumedhnvda/GM-uni/internal/v1/signaling"
)

type fakeAudioSource struct {
	blocks chan []float32
	mu     sync.Mutex
	closed bool
}

func newFakeAudioSource() *fakeAudioSource {
	return &fakeAudioSource{blocks: make(chan []float32, 16)}
}

func (f *fakeAudioSource) ReadBlock() ([]float32, error) {
	block, ok := <-f.blocks
	if !ok {
		return nil, io.EOF
	}
	return block, nil
}

func (f *fakeAudioSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.blocks)
	}
	return nil
}

func (f *fakeAudioSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeVideoSource struct {
	mu     sync.Mutex
	frames int
	closed bool
	fail   error
}

func (f *fakeVideoSource) Grab(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.frames++
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (f *fakeVideoSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeVideoSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []signaling.MediaChunk
}

func (r *chunkRecorder) send(chunk signaling.MediaChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *chunkRecorder) snapshot() []signaling.MediaChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]signaling.MediaChunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func TestPumpAudio_SendsPCMChunks(t *testing.T) {
	src := newFakeAudioSource()
	stream := NewMediaStream(src, nil)
	gates := NewGates()
	rec := &chunkRecorder{}

	done := make(chan error, 1)
	go func() { done <- PumpAudio(context.Background(), stream, gates, rec.send) }()

	src.blocks <- []float32{0.5, -0.5}
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	chunk := rec.snapshot()[0]
	assert.Equal(t, MimeAudioPCM, chunk.MimeType)
	pcm, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	assert.Len(t, pcm, 4, "two samples at two bytes each")

	_ = src.Close()
	err = <-done
	assert.ErrorIs(t, err, io.EOF, "source exhaustion surfaces to the caller")
}

func TestPumpAudio_MutedDiscardsWithoutSending(t *testing.T) {
	src := newFakeAudioSource()
	stream := NewMediaStream(src, nil)
	gates := NewGates()
	gates.SetMuted(true)
	rec := &chunkRecorder{}

	done := make(chan error, 1)
	go func() { done <- PumpAudio(context.Background(), stream, gates, rec.send) }()

	for i := 0; i < 5; i++ {
		src.blocks <- []float32{0.1}
	}
	assert.Eventually(t, func() bool { return len(src.blocks) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	// Unmute; the next block flows
	gates.SetMuted(false)
	src.blocks <- []float32{0.2}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond,
		"muted blocks must be discarded, not buffered or silenced")

	_ = src.Close()
	<-done
}

func TestPumpVideo_SendsJPEGOnCadence(t *testing.T) {
	src := &fakeVideoSource{}
	stream := NewMediaStream(nil, src)
	gates := NewGates()
	rec := &chunkRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- PumpVideo(ctx, stream, gates, rec.send) }()

	assert.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 3*time.Second, 20*time.Millisecond)
	chunk := rec.snapshot()[0]
	assert.Equal(t, MimeImageJPEG, chunk.MimeType)

	data, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "payload is a JPEG")

	cancel()
	assert.NoError(t, <-done)
}

func TestPumpVideo_DisabledSkipsGrab(t *testing.T) {
	src := &fakeVideoSource{}
	stream := NewMediaStream(nil, src)
	gates := NewGates()
	gates.SetVideoEnabled(false)
	rec := &chunkRecorder{}

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	require.NoError(t, PumpVideo(ctx, stream, gates, rec.send))

	assert.Empty(t, rec.snapshot())
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Zero(t, src.frames, "disabled video must not touch the camera")
}

func TestPumpVideo_GrabFailureContinues(t *testing.T) {
	src := &fakeVideoSource{fail: errors.New("device busy")}
	stream := NewMediaStream(nil, src)
	gates := NewGates()
	rec := &chunkRecorder{}

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	assert.NoError(t, PumpVideo(ctx, stream, gates, rec.send), "a bad grab must not kill the pump")
}

func TestMediaStream_ReplaceVideoSource(t *testing.T) {
	audioSrc := newFakeAudioSource()
	oldVideo := &fakeVideoSource{}
	stream := NewMediaStream(audioSrc, oldVideo)
	audioTrack := stream.AudioTrack()

	newVideo := &fakeVideoSource{}
	stream.ReplaceVideoSource(newVideo)

	assert.True(t, oldVideo.isClosed(), "old camera released")
	assert.False(t, newVideo.isClosed())
	assert.False(t, audioSrc.isClosed(), "microphone untouched by camera switch")
	assert.Same(t, audioTrack, stream.AudioTrack(), "audio track identity preserved")

	_, err := stream.GrabFrame(context.Background())
	assert.NoError(t, err)
	stream.StopAll()
}

func TestMediaStream_StopAll(t *testing.T) {
	audioSrc := newFakeAudioSource()
	videoSrc := &fakeVideoSource{}
	stream := NewMediaStream(audioSrc, videoSrc)

	stream.StopAll()
	stream.StopAll() // idempotent

	assert.True(t, audioSrc.isClosed())
	assert.True(t, videoSrc.isClosed())

	_, err := stream.ReadAudioBlock()
	assert.ErrorIs(t, err, ErrNoDevice)
	_, err = stream.GrabFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoDevice)
}
