package models_test

import (
	"bytes"
	"errors"
	"testing"

	"notemirror/models"
)

func TestBodyCodec_RoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("note content with plenty of repetition "), 50)

	blob, err := models.EncodeNoteBody("note-guid", raw)
	if err != nil {
		t.Fatalf("EncodeNoteBody failed: %v", err)
	}
	if len(blob) >= len(raw) {
		t.Errorf("expected repetitive content to compress, blob=%d raw=%d", len(blob), len(raw))
	}

	decoded, err := models.DecodeNoteBody("note-guid", blob)
	if err != nil {
		t.Fatalf("DecodeNoteBody failed: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Error("decoded body does not match original")
	}
}

func TestBodyCodec_EmptyBody(t *testing.T) {
	blob, err := models.EncodeNoteBody("empty-note", nil)
	if err != nil {
		t.Fatalf("EncodeNoteBody failed on empty body: %v", err)
	}
	decoded, err := models.DecodeNoteBody("empty-note", blob)
	if err != nil {
		t.Fatalf("DecodeNoteBody failed on empty body: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(decoded))
	}
}

func TestBodyCodec_WrongOwner(t *testing.T) {
	blob, err := models.EncodeNoteBody("note-a", []byte("body"))
	if err != nil {
		t.Fatalf("EncodeNoteBody failed: %v", err)
	}

	_, err = models.DecodeNoteBody("note-b", blob)
	var corrupt *models.CorruptBodyError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptBodyError for wrong owner, got %v", err)
	}
	if corrupt.GUID != "note-b" {
		t.Errorf("error should carry the requested GUID, got %q", corrupt.GUID)
	}
}

func TestBodyCodec_CorruptedBlob(t *testing.T) {
	blob, err := models.EncodeNoteBody("note-a", []byte("body to damage"))
	if err != nil {
		t.Fatalf("EncodeNoteBody failed: %v", err)
	}

	// Flip bytes near the tail where the compressed payload lives
	damaged := append([]byte(nil), blob...)
	for i := len(damaged) - 4; i < len(damaged); i++ {
		damaged[i] ^= 0xFF
	}

	_, err = models.DecodeNoteBody("note-a", damaged)
	var corrupt *models.CorruptBodyError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptBodyError for damaged blob, got %v", err)
	}

	// Garbage that is not an envelope at all
	_, err = models.DecodeNoteBody("note-a", []byte("not msgpack"))
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptBodyError for garbage blob, got %v", err)
	}
}
