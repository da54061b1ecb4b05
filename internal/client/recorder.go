package client

import (
	"context"
	"fmt"
	"sync"
)

// Recording states.
type RecorderState int

const (
	StateIdle RecorderState = iota
	StateRecording
)

// CaptureDevice abstracts the microphone. Stop returns the captured audio;
// Release discards the capture session without producing data.
type CaptureDevice interface {
	Start() error
	Stop() ([]byte, error)
	Release()
}

// Uploader stores a captured clip and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// Compose is the message-composition state a failed voice send must not
// destroy: the typed draft and the reply target survive so the user can
// retry without retyping.
type Compose struct {
	Draft   string
	ReplyTo string
}

// Clear resets the compose state after a successful send.
func (c *Compose) Clear() {
	c.Draft = ""
	c.ReplyTo = ""
}

// Recorder is the voice-message state machine: idle -> recording, then
// either cancel (release capture, nothing leaves the device) or stop
// (upload, then send as an audio message).
type Recorder struct {
	mu       sync.Mutex
	state    RecorderState
	device   CaptureDevice
	uploader Uploader
	send     func(ctx context.Context, audioURL, replyTo string) error
}

// NewRecorder wires a Recorder to its capture device, uploader, and the send
// function that delivers the finished audio message.
func NewRecorder(device CaptureDevice, uploader Uploader, send func(ctx context.Context, audioURL, replyTo string) error) *Recorder {
	return &Recorder{device: device, uploader: uploader, send: send}
}

// State returns the current state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins capturing. Starting while already recording is an error, not
// a restart: the UI decides whether to cancel first.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("client: recorder already recording")
	}
	if err := r.device.Start(); err != nil {
		return fmt.Errorf("client: start capture: %w", err)
	}
	r.state = StateRecording
	return nil
}

// Cancel abandons the recording. The capture is released without upload or
// send; nothing the microphone heard leaves the process.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return
	}
	r.device.Release()
	r.state = StateIdle
}

// Stop finishes the recording, uploads the clip, and sends it as an audio
// message with compose's reply target. On success the compose state is
// cleared. On any failure the compose state is left intact and the error is
// returned so the UI can surface it and offer a retry.
func (r *Recorder) Stop(ctx context.Context, compose *Compose) error {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return fmt.Errorf("client: recorder not recording")
	}
	data, err := r.device.Stop()
	r.state = StateIdle
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("client: stop capture: %w", err)
	}

	audioURL, err := r.uploader.Upload(ctx, data)
	if err != nil {
		return fmt.Errorf("client: upload recording: %w", err)
	}

	if err := r.send(ctx, audioURL, compose.ReplyTo); err != nil {
		return fmt.Errorf("client: send recording: %w", err)
	}

	compose.Clear()
	return nil
}
