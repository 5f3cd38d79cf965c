package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ffmpeg-backed device implementations. Capture runs as a child process
// writing raw frames to stdout; killing the process is what releases the
// device.

const audioBlockSamples = 1024

type ffmpegMic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
}

// OpenMicrophone starts an ffmpeg capture of the default microphone as
// mono s16le at the given sample rate.
func OpenMicrophone(sampleRate int) (AudioSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for microphone capture")
	}
	args, err := micArgs(runtime.GOOS, sampleRate)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &ffmpegMic{
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, audioBlockSamples*pcmBytesPerSample),
	}, nil
}

func micArgs(goos string, sampleRate int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s", goos)
	}
}

func (m *ffmpegMic) ReadBlock() ([]float32, error) {
	if _, err := io.ReadFull(m.stdout, m.buf); err != nil {
		return nil, err
	}
	return PCM16ToFloat32(m.buf), nil
}

func (m *ffmpegMic) Close() error {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}

type ffmpegCamera struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	closer io.ReadCloser
}

// OpenCamera starts an ffmpeg MJPEG capture of the camera matching the
// facing mode. Device index 0 is treated as the user-facing camera and
// index 1 as the environment-facing one.
func OpenCamera(ctx context.Context, facing Facing) (VideoSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for camera capture")
	}
	index := 0
	if facing == FacingEnvironment {
		index = 1
	}
	args, err := cameraArgs(runtime.GOOS, index)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg camera capture: %w", err)
	}
	return &ffmpegCamera{cmd: cmd, stdout: bufio.NewReader(stdout), closer: stdout}, nil
}

func cameraArgs(goos string, index int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-framerate", "30", "-i", fmt.Sprintf("%d:", index),
			"-vf", "fps=2",
			"-f", "image2pipe", "-vcodec", "mjpeg", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "v4l2", "-i", fmt.Sprintf("/dev/video%d", index),
			"-vf", "fps=2",
			"-f", "image2pipe", "-vcodec", "mjpeg", "-",
		}, nil
	default:
		return nil, fmt.Errorf("camera capture is not implemented for %s", goos)
	}
}

// Grab decodes the next JPEG frame off the MJPEG stream.
func (c *ffmpegCamera) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := jpeg.Decode(c.stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return frame, nil
}

func (c *ffmpegCamera) Close() error {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}

// SystemEnumerator counts video devices on the host.
type SystemEnumerator struct{}

func (SystemEnumerator) VideoInputs(ctx context.Context) (int, error) {
	switch runtime.GOOS {
	case "linux":
		matches, err := filepath.Glob("/dev/video*")
		if err != nil {
			return 0, err
		}
		return len(matches), nil
	case "darwin":
		// No cheap enumeration; assume the built-in camera only.
		return 1, nil
	default:
		return 0, fmt.Errorf("device enumeration is not implemented for %s", runtime.GOOS)
	}
}
