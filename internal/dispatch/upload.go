package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ferryd/ferry/internal/wire"
)

// audioExtensions covers the audio types the transcription pipeline cares
// about, independent of the host's mime.types database.
var audioExtensions = map[string]bool{
	".aac":  true,
	".aif":  true,
	".aiff": true,
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".oga":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".wma":  true,
}

// isAudio infers from the file name whether the stored upload is audio.
func isAudio(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if audioExtensions[ext] {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "audio/")
}

// handleUploadDocument stores a file and, when it turns out to be audio,
// transcribes it as a second pipeline stage.
//
// The first envelope frame carries the stored location and is always the
// command's success signal. A transcription that produces a transcript adds
// a second envelope frame; a transcription failure is logged and swallowed —
// upload success is not retroactively invalidated by a downstream failure.
func (d *Dispatcher) handleUploadDocument(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	var (
		result    string
		localPath string
	)

	if fileData, ok := args["file_data"]; ok && fileData != nil {
		name := optionalString(args, "file_name", "")
		if name == "" {
			return fmt.Errorf("file_name is required when file_data is provided")
		}
		data, err := decodePayload(fileData)
		if err != nil {
			return err
		}
		result, err = d.backend.UploadData(ctx, data, name, inv.User, inv.Session)
		if err != nil {
			return err
		}
		localPath = d.backend.UploadedPath(inv.User, name)
	} else {
		path, err := stringArg(args, "file_path")
		if err != nil {
			return err
		}
		result, err = d.backend.UploadDocument(ctx, path, inv.User, inv.Session)
		if err != nil {
			return err
		}
		localPath = d.backend.UploadedPath(inv.User, filepath.Base(path))
	}

	// Best effort: a notification failure must not hold back the stored
	// result.
	if err := d.backend.Notify(ctx, "File uploaded: "+result, inv.User, inv.Session); err != nil {
		log.Printf("upload notification failed for %s: %v", inv.User, err)
	}
	if err := emit(wire.Result(result)); err != nil {
		return err
	}

	if !isAudio(localPath) {
		return nil
	}

	transcript, err := d.backend.Transcribe(ctx, localPath, inv.User, inv.Session)
	if err != nil {
		log.Printf("transcription failed for %s: %v", localPath, err)
		return nil
	}
	if transcript == "" {
		return nil
	}
	if err := d.backend.Notify(ctx, "File uploaded: "+transcript, inv.User, inv.Session); err != nil {
		log.Printf("transcript notification failed for %s: %v", inv.User, err)
	}
	return emit(wire.Result(transcript))
}

// decodePayload turns the file_data argument into bytes. JSON clients send
// base64 text; in-process callers may pass bytes directly.
func decodePayload(v any) ([]byte, error) {
	switch data := v.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("file_data is not valid base64: %w", err)
		}
		return decoded, nil
	case []byte:
		return data, nil
	default:
		return nil, fmt.Errorf("file_data must be bytes or a base64 string")
	}
}
