package models

import (
	"bytes"
	"crypto/sha256"

	"github.com/klauspost/compress/zstd"
	"github.com/rohanthewiz/serr"
	"github.com/vmihailenco/msgpack/v5"
)

// ============================================================================
// Note Body Codec
//
// Downloaded note bodies are stored as a compressed, self-describing blob:
// a msgpack envelope carrying the owning note GUID, the uncompressed size,
// a SHA-256 digest, and the zstd-compressed content. Decode verifies all
// three, so a truncated or corrupted download is detected before persist
// and treated as a failed fetch rather than poisoning the mirror.
// ============================================================================

// bodyEnvelope is the on-disk layout of the body BLOB column.
type bodyEnvelope struct {
	GUID   string `msgpack:"guid"`
	Size   int64  `msgpack:"size"`
	SHA256 []byte `msgpack:"sha256"`
	Data   []byte `msgpack:"data"` // zstd-compressed content
}

// CorruptBodyError reports that a body blob failed verification.
type CorruptBodyError struct {
	GUID   string
	Reason string
}

func (e *CorruptBodyError) Error() string {
	return "corrupt note body for " + e.GUID + ": " + e.Reason
}

// Shared zstd coders; both are safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeNoteBody wraps a raw downloaded body into the stored envelope.
func EncodeNoteBody(guid string, raw []byte) ([]byte, error) {
	digest := sha256.Sum256(raw)

	env := bodyEnvelope{
		GUID:   guid,
		Size:   int64(len(raw)),
		SHA256: digest[:],
		Data:   zstdEncoder.EncodeAll(raw, nil),
	}

	blob, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, serr.Wrap(err, "failed to encode note body envelope")
	}
	return blob, nil
}

// DecodeNoteBody unwraps a stored envelope back into the raw body,
// verifying ownership, size, and digest. Any mismatch returns a
// *CorruptBodyError.
func DecodeNoteBody(guid string, blob []byte) ([]byte, error) {
	var env bodyEnvelope
	if err := msgpack.Unmarshal(blob, &env); err != nil {
		return nil, &CorruptBodyError{GUID: guid, Reason: "envelope unreadable: " + err.Error()}
	}

	if env.GUID != guid {
		return nil, &CorruptBodyError{GUID: guid, Reason: "envelope belongs to note " + env.GUID}
	}

	raw, err := zstdDecoder.DecodeAll(env.Data, nil)
	if err != nil {
		return nil, &CorruptBodyError{GUID: guid, Reason: "decompression failed: " + err.Error()}
	}

	if int64(len(raw)) != env.Size {
		return nil, &CorruptBodyError{GUID: guid, Reason: "size mismatch"}
	}

	digest := sha256.Sum256(raw)
	if !bytes.Equal(digest[:], env.SHA256) {
		return nil, &CorruptBodyError{GUID: guid, Reason: "digest mismatch"}
	}

	return raw, nil
}
