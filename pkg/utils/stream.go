package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// DefaultChunkSize 每次转发的音频块大小
const DefaultChunkSize = 8192

// SetupAudioHeaders 设置音频流响应头
func SetupAudioHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// CopyChunked forwards src to w in chunks of at most size bytes, flushing after
// each one. It stops when ctx is done or the client write fails and returns
// the number of bytes written. io.EOF from src is not an error.
func CopyChunked(ctx context.Context, w http.ResponseWriter, src io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, size)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			wn, err := w.Write(buf[:n])
			written += int64(wn)
			if err != nil {
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
