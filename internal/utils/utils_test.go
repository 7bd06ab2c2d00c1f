package utils

import (
	"bufio"
	"bytes"
	"context"
	"slices"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}

	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Unexpected scanner error: %v", err)
	}
}

func TestSplitJpeg_BackToBack(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	stream := append(append([]byte{}, a...), b...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte{}, scanner.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Frames split incorrectly: %X", got)
	}
}

func TestNewFFmpegCmd(t *testing.T) {
	cmd := NewFFmpegCmd(context.Background(), "clip.mp4", true)
	if !slices.Contains(cmd.Args, "-re") {
		t.Errorf("Expected -re in realtime mode, got %v", cmd.Args)
	}
	if cmd.Args[len(cmd.Args)-1] != "-" {
		t.Errorf("Expected output to stdout, got %v", cmd.Args)
	}

	cmd = NewFFmpegCmd(context.Background(), "rtsp://cam/stream", false)
	if slices.Contains(cmd.Args, "-re") {
		t.Errorf("Did not expect -re for a live input, got %v", cmd.Args)
	}
}
