package dispatch

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestUploadNonAudioSingleFrame(t *testing.T) {
	b := &fakeBackend{transcript: "should never be used"}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_path": "/tmp/notes.txt"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", len(frames))
	}
	if got := frameJSON(t, frames[0]); got != `{"result":"stored:/tmp/notes.txt"}` {
		t.Errorf("frame = %s", got)
	}
	if len(b.notifications) != 1 {
		t.Errorf("expected one upload notification, got %d", len(b.notifications))
	}
}

func TestUploadAudioTranscribedTwoFrames(t *testing.T) {
	b := &fakeBackend{transcript: "stored:/uploads/alice/memo.txt"}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_path": "/tmp/memo.mp3"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames (store then transcript), got %d", len(frames))
	}
	if got := frameJSON(t, frames[0]); got != `{"result":"stored:/tmp/memo.mp3"}` {
		t.Errorf("first frame = %s", got)
	}
	if got := frameJSON(t, frames[1]); got != `{"result":"stored:/uploads/alice/memo.txt"}` {
		t.Errorf("second frame = %s", got)
	}
	if len(b.notifications) != 2 {
		t.Errorf("expected two notifications, got %d", len(b.notifications))
	}
}

func TestUploadAudioTranscriptionErrorSwallowed(t *testing.T) {
	b := &fakeBackend{transcribeErr: errors.New("whisper crashed")}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_path": "/tmp/memo.wav"})
	if err != nil {
		t.Fatalf("transcription failure must not fail the command: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected only the store frame, got %d frames", len(frames))
	}
	if got := frameJSON(t, frames[0]); got != `{"result":"stored:/tmp/memo.wav"}` {
		t.Errorf("frame = %s", got)
	}
}

func TestUploadAudioEmptyTranscriptNoSecondFrame(t *testing.T) {
	b := &fakeBackend{transcript: ""}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_path": "/tmp/memo.flac"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame for an empty transcript, got %d", len(frames))
	}
	if len(b.notifications) != 1 {
		t.Errorf("empty transcript must not notify again, got %d notifications", len(b.notifications))
	}
}

func TestUploadBase64Payload(t *testing.T) {
	b := &fakeBackend{}
	d := New(b)

	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_data": encoded, "file_name": "greeting.txt"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if got := frameJSON(t, frames[0]); got != `{"result":"stored:greeting.txt"}` {
		t.Errorf("frame = %s", got)
	}
	if len(b.uploads) != 1 || b.uploads[0] != "greeting.txt" {
		t.Errorf("uploads = %v", b.uploads)
	}
}

func TestUploadRawBytesPayload(t *testing.T) {
	b := &fakeBackend{}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_data": []byte{0x01, 0x02}, "file_name": "blob.bin"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestUploadNotifyFailureDoesNotBlockFrame(t *testing.T) {
	b := &fakeBackend{notifyErr: errors.New("notifier down")}
	d := New(b)

	frames, err := dispatchCollect(t, d, newInvocation(), "upload_document",
		map[string]any{"file_path": "/tmp/notes.txt"})
	if err != nil {
		t.Fatalf("notification failure must not fail the upload: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected the store frame despite notify failure, got %d frames", len(frames))
	}
}

func TestIsAudio(t *testing.T) {
	testCases := []struct {
		name     string
		expected bool
	}{
		{"memo.mp3", true},
		{"memo.WAV", true},
		{"voice.m4a", true},
		{"song.flac", true},
		{"clip.opus", true},
		{"notes.txt", false},
		{"image.png", false},
		{"archive.tar.gz", false},
		{"noextension", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isAudio(tc.name); got != tc.expected {
				t.Errorf("isAudio(%q) = %v, expected %v", tc.name, got, tc.expected)
			}
		})
	}
}
