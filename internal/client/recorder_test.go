package client

import (
	"context"
	"errors"
	"testing"
)

type fakeDevice struct {
	started  bool
	released bool
	data     []byte
	stopErr  error
}

func (d *fakeDevice) Start() error {
	d.started = true
	return nil
}

func (d *fakeDevice) Stop() ([]byte, error) {
	return d.data, d.stopErr
}

func (d *fakeDevice) Release() {
	d.released = true
}

type fakeUploader struct {
	url string
	err error
	got []byte
}

func (u *fakeUploader) Upload(_ context.Context, data []byte) (string, error) {
	u.got = data
	return u.url, u.err
}

func TestRecorderStopUploadsAndSends(t *testing.T) {
	device := &fakeDevice{data: []byte("opus-bytes")}
	uploader := &fakeUploader{url: "https://cdn.example.com/clip.ogg"}

	var sentURL, sentReply string
	rec := NewRecorder(device, uploader, func(_ context.Context, audioURL, replyTo string) error {
		sentURL, sentReply = audioURL, replyTo
		return nil
	})

	compose := &Compose{Draft: "typed so far", ReplyTo: "msg-1"}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if rec.State() != StateRecording {
		t.Fatalf("expected recording state")
	}
	if err := rec.Stop(context.Background(), compose); err != nil {
		t.Fatal(err)
	}

	if string(uploader.got) != "opus-bytes" {
		t.Errorf("uploader must receive the captured clip, got %q", uploader.got)
	}
	if sentURL != uploader.url || sentReply != "msg-1" {
		t.Errorf("send must carry the upload url and reply target, got %q %q", sentURL, sentReply)
	}
	if compose.Draft != "" || compose.ReplyTo != "" {
		t.Errorf("successful send must clear compose state, got %+v", compose)
	}
	if rec.State() != StateIdle {
		t.Errorf("recorder must return to idle")
	}
}

func TestRecorderCancelReleasesWithoutUpload(t *testing.T) {
	device := &fakeDevice{data: []byte("never-sent")}
	uploader := &fakeUploader{url: "https://cdn.example.com/clip.ogg"}

	sends := 0
	rec := NewRecorder(device, uploader, func(context.Context, string, string) error {
		sends++
		return nil
	})

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	rec.Cancel()

	if !device.released {
		t.Error("cancel must release the capture device")
	}
	if uploader.got != nil {
		t.Error("cancelled recording must not upload")
	}
	if sends != 0 {
		t.Error("cancelled recording must not send")
	}
	if rec.State() != StateIdle {
		t.Error("cancel must return to idle")
	}
}

func TestRecorderUploadFailurePreservesCompose(t *testing.T) {
	device := &fakeDevice{data: []byte("clip")}
	uploader := &fakeUploader{err: errors.New("storage unreachable")}

	rec := NewRecorder(device, uploader, func(context.Context, string, string) error {
		t.Fatal("send must not run after a failed upload")
		return nil
	})

	compose := &Compose{Draft: "half-written caption", ReplyTo: "msg-9"}

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	err := rec.Stop(context.Background(), compose)
	if err == nil {
		t.Fatal("expected upload error")
	}

	if compose.Draft != "half-written caption" || compose.ReplyTo != "msg-9" {
		t.Errorf("failed send must preserve compose state for retry, got %+v", compose)
	}
	if rec.State() != StateIdle {
		t.Error("recorder must be idle after a failed stop")
	}
}

func TestRecorderDoubleStartRejected(t *testing.T) {
	rec := NewRecorder(&fakeDevice{}, &fakeUploader{}, func(context.Context, string, string) error {
		return nil
	})

	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Start(); err == nil {
		t.Error("second start while recording must fail")
	}
}
