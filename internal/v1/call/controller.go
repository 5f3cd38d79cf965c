package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/backend"
	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/media"
	"github.com/sumedhnvda/GM-uni/internal/v1/playback"
	"github.com/sumedhnvda/GM-uni/internal/v1/signaling"
)

// State is the live-call lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnding     State = "ending"
	StateEnded      State = "ended"
	StateError      State = "error"
)

const endFallbackTimeout = 5 * time.Second

// DeviceOpener acquires the capture devices for a call. Injected so the
// controller never touches hardware directly.
type DeviceOpener func(ctx context.Context) (*media.MediaStream, error)

// SinkFactory builds the playback sink for a call.
type SinkFactory func() (playback.Sink, error)

// Controller drives one live call end to end: device acquisition, the live
// stream, capture pumps, and playback. The caller owns the lifecycle; the
// server never initiates a session, it only confirms the end of one.
type Controller struct {
	api      *backend.Client
	open     DeviceOpener
	newSink  SinkFactory
	camera   *media.CameraController
	onChange func(State)

	mu        sync.Mutex
	state     State
	stream    *media.MediaStream
	channel   *signaling.Channel
	queue     *playback.Queue
	gates     *media.Gates
	endTimer  *time.Timer
	pumpStop  context.CancelFunc
	finalized bool
}

// NewController creates an idle controller. camera may be nil when the host
// cannot switch; onChange, if non-nil, fires on every state transition.
func NewController(api *backend.Client, open DeviceOpener, newSink SinkFactory, camera *media.CameraController, onChange func(State)) *Controller {
	return &Controller{
		api:      api,
		open:     open,
		newSink:  newSink,
		camera:   camera,
		onChange: onChange,
		state:    StateIdle,
		gates:    media.NewGates(),
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Muted reports the microphone gate.
func (c *Controller) Muted() bool { return c.gates.Muted() }

// SetMuted flips the microphone gate. No state transition: capture keeps
// running, blocks are discarded while muted.
func (c *Controller) SetMuted(muted bool) { c.gates.SetMuted(muted) }

// VideoEnabled reports the video gate.
func (c *Controller) VideoEnabled() bool { return c.gates.VideoEnabled() }

// SetVideoEnabled flips the video gate.
func (c *Controller) SetVideoEnabled(enabled bool) { c.gates.SetVideoEnabled(enabled) }

// Start acquires devices, then dials the live endpoint. Device failure
// leaves the channel undialed and the controller in StateError; nothing to
// tear down because nothing opened.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot start a call from state %q", c.state)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	stream, err := c.open(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateError)
		c.mu.Unlock()
		return fmt.Errorf("failed to acquire capture devices: %w", err)
	}

	sink, err := c.newSink()
	if err != nil {
		stream.StopAll()
		c.mu.Lock()
		c.setStateLocked(StateError)
		c.mu.Unlock()
		return fmt.Errorf("failed to open playback: %w", err)
	}
	queue := playback.NewQueue(sink)

	wsURL := signaling.DeriveWebSocketURL(c.api.BaseURL(), "/api/ws/live", c.api.Token())
	ch, err := signaling.Dial(ctx, wsURL, c.handleFrame, c.handleClose)
	if err != nil {
		stream.StopAll()
		queue.Close()
		c.mu.Lock()
		c.setStateLocked(StateError)
		c.mu.Unlock()
		return fmt.Errorf("failed to open live stream: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.finalized {
		// The channel died between dial and registration
		c.mu.Unlock()
		cancel()
		stream.StopAll()
		queue.Close()
		ch.Close()
		return fmt.Errorf("live stream closed during connect")
	}
	c.stream = stream
	c.queue = queue
	c.channel = ch
	c.pumpStop = cancel
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	send := func(chunk signaling.MediaChunk) {
		ch.Send(signaling.NewRealtimeInput(chunk))
	}
	go func() {
		if err := media.PumpAudio(pumpCtx, stream, c.gates, send); err != nil {
			logging.Warn(pumpCtx, "audio pump stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := media.PumpVideo(pumpCtx, stream, c.gates, send); err != nil {
			logging.Warn(pumpCtx, "video pump stopped", zap.Error(err))
		}
	}()

	logging.Info(ctx, "live call connected")
	return nil
}

// End requests a graceful shutdown: the end envelope goes out, the state
// moves to ending, and a fallback timer guarantees teardown even if the
// confirmation never arrives. A no-op unless the call is connected.
func (c *Controller) End() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateEnding)
	ch := c.channel
	c.endTimer = time.AfterFunc(endFallbackTimeout, func() {
		logging.Warn(context.Background(), "no session end confirmation, forcing teardown")
		c.finalize(StateEnded)
	})
	c.mu.Unlock()

	if ch != nil {
		ch.Send(signaling.NewEndSession())
	}
}

// SwitchCamera flips between facing modes. A no-op unless the call is
// connected and the host actually has a second camera.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	c.mu.Lock()
	stream := c.stream
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || c.camera == nil {
		return nil
	}
	if !c.camera.CanSwitch(ctx) {
		return nil
	}
	return c.camera.Switch(ctx, stream)
}

// CanSwitchCamera gates the switch affordance.
func (c *Controller) CanSwitchCamera(ctx context.Context) bool {
	return c.camera != nil && c.camera.CanSwitch(ctx)
}

func (c *Controller) handleFrame(data []byte) {
	ev, err := signaling.DecodeLiveEvent(data)
	if err != nil {
		logging.Warn(context.Background(), "dropping undecodable live frame", zap.Error(err))
		return
	}

	switch ev := ev.(type) {
	case signaling.AudioEvent:
		c.mu.Lock()
		queue := c.queue
		c.mu.Unlock()
		if queue != nil {
			queue.Enqueue(ev.Audio)
		}
	case signaling.SessionEndedEvent:
		c.finalize(StateEnded)
	}
}

// handleClose runs when the live stream dies. During a deliberate end the
// close is part of teardown; anywhere else it is a failure. The controller
// dials exactly once, so routing is by state rather than channel identity.
func (c *Controller) handleClose(_ *signaling.Channel, err error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateEnding:
		c.finalize(StateEnded)
	case StateConnecting, StateConnected:
		if err != nil {
			logging.Error(context.Background(), "live stream closed unexpectedly", zap.Error(err))
		}
		c.finalize(StateError)
	}
}

// finalize tears the call down exactly once. Tracks stop synchronously
// before the state flips, so by the time the controller reports ended the
// camera and microphone are released.
func (c *Controller) finalize(final State) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	if c.endTimer != nil {
		c.endTimer.Stop()
		c.endTimer = nil
	}
	stream := c.stream
	queue := c.queue
	ch := c.channel
	stop := c.pumpStop
	c.stream = nil
	c.queue = nil
	c.channel = nil
	c.pumpStop = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if stream != nil {
		stream.StopAll()
	}
	if queue != nil {
		queue.Close()
	}
	if ch != nil {
		ch.Close()
	}

	c.mu.Lock()
	c.setStateLocked(final)
	c.mu.Unlock()
	logging.Info(context.Background(), "live call finished", zap.String("state", string(final)))
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onChange != nil {
		// Fire outside the lock to keep observers from deadlocking
		go c.onChange(s)
	}
}
