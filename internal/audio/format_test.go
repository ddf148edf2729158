package audio_test

import (
	"testing"

	"github.com/book-expert/voice-orchestrator/internal/audio"
	"github.com/stretchr/testify/assert"
)

// wavBytes returns a minimal RIFF/WAVE header followed by n silent bytes.
func wavBytes(n int) []byte {
	header := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

	return append(header, make([]byte, n)...)
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		format   audio.Format
		mimeType string
	}{
		{"wav", wavBytes(4), audio.FormatWAV, "audio/wav"},
		{"mp3 id3", []byte("ID3\x04\x00rest"), audio.FormatMP3, "audio/mpeg"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, audio.FormatMP3, "audio/mpeg"},
		{"flac", []byte("fLaC\x00\x00"), audio.FormatFLAC, "audio/flac"},
		{"ogg", []byte("OggS\x00\x02"), audio.FormatOGG, "audio/ogg"},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, audio.FormatWebM, "audio/webm"},
		{"riff without wave", []byte("RIFF\x00\x00\x00\x00AVI LIST"), audio.FormatUnknown, audio.DefaultContentType},
		{"garbage", []byte("hello"), audio.FormatUnknown, audio.DefaultContentType},
		{"empty", nil, audio.FormatUnknown, audio.DefaultContentType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.format, audio.Detect(tc.data))
			assert.Equal(t, tc.mimeType, audio.ContentTypeOf(tc.data))
		})
	}
}

func TestUploadName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio.wav", audio.UploadName(wavBytes(8)))
	assert.Equal(t, "audio.ogg", audio.UploadName([]byte("OggS....")))
	assert.Equal(t, "audio.wav", audio.UploadName([]byte("unknown")))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, audio.Validate(nil), audio.ErrEmptyAudio)
	assert.ErrorIs(t, audio.Validate([]byte{}), audio.ErrEmptyAudio)
	assert.NoError(t, audio.Validate([]byte{1}))
	assert.Equal(t, audio.FormatUnknown, audio.Detect([]byte("m4a?")))
	assert.NoError(t, audio.Validate([]byte("m4a?")))
}
