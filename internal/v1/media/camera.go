package media

import (
	"context"
	"fmt"
	"sync"
)

// Facing selects which camera a video source should open.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Opposite returns the other facing mode.
func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// CameraOpener opens a video source for a facing mode.
type CameraOpener func(ctx context.Context, facing Facing) (VideoSource, error)

// Enumerator counts the video input devices on the host.
type Enumerator interface {
	VideoInputs(ctx context.Context) (int, error)
}

// CameraController tracks the active facing mode and performs switches.
// A failed switch keeps the running camera and rolls the facing selection
// back, so the caller never ends up with a dead video track.
type CameraController struct {
	open CameraOpener
	enum Enumerator

	mu     sync.Mutex
	facing Facing
}

// NewCameraController starts in the given facing mode.
func NewCameraController(open CameraOpener, enum Enumerator, initial Facing) *CameraController {
	if initial == "" {
		initial = FacingUser
	}
	return &CameraController{open: open, enum: enum, facing: initial}
}

// Facing returns the currently selected facing mode.
func (c *CameraController) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

// CanSwitch reports whether the host has more than one camera. Enumeration
// failures report false; the affordance simply stays hidden.
func (c *CameraController) CanSwitch(ctx context.Context) bool {
	if c.enum == nil {
		return false
	}
	n, err := c.enum.VideoInputs(ctx)
	if err != nil {
		return false
	}
	return n >= 2
}

// Switch opens the opposite camera and splices it into the stream. The old
// video track is stopped only after the new source opens; on failure the
// facing selection is unchanged and the old camera keeps running.
func (c *CameraController) Switch(ctx context.Context, stream *MediaStream) error {
	c.mu.Lock()
	target := c.facing.Opposite()
	c.mu.Unlock()

	src, err := c.open(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to open %s camera: %w", target, err)
	}

	stream.ReplaceVideoSource(src)

	c.mu.Lock()
	c.facing = target
	c.mu.Unlock()
	return nil
}
