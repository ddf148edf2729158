// Package audio identifies the container format of audio payloads so that
// uploads can be named and synthesized audio can be served with the right
// content type.
package audio

import (
	"bytes"
	"errors"
)

// Format represents supported audio formats.
type Format string

// Supported formats.
const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatWebM    Format = "webm"
	FormatUnknown Format = ""
)

// DefaultContentType is used when a payload cannot be identified; the
// synthesis backend produces WAV.
const DefaultContentType = "audio/wav"

// ErrEmptyAudio indicates an empty audio payload.
var ErrEmptyAudio = errors.New("audio payload is empty")

var contentTypes = map[Format]string{
	FormatWAV:  "audio/wav",
	FormatMP3:  "audio/mpeg",
	FormatFLAC: "audio/flac",
	FormatOGG:  "audio/ogg",
	FormatWebM: "audio/webm",
}

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
	magicFLAC = []byte("fLaC")
	magicOGG  = []byte("OggS")
	magicEBML = []byte{0x1A, 0x45, 0xDF, 0xA3}
)

const (
	waveOffset    = 8
	minHeaderSize = 12
	mpegSyncByte  = 0xFF
	mpegSyncMask  = 0xE0
)

// Detect identifies the container format of data from its leading bytes.
func Detect(data []byte) Format {
	switch {
	case len(data) >= minHeaderSize && bytes.HasPrefix(data, magicRIFF) &&
		bytes.Equal(data[waveOffset:waveOffset+len(magicWAVE)], magicWAVE):
		return FormatWAV
	case bytes.HasPrefix(data, magicID3):
		return FormatMP3
	case len(data) >= 2 && data[0] == mpegSyncByte && data[1]&mpegSyncMask == mpegSyncMask:
		return FormatMP3
	case bytes.HasPrefix(data, magicFLAC):
		return FormatFLAC
	case bytes.HasPrefix(data, magicOGG):
		return FormatOGG
	case bytes.HasPrefix(data, magicEBML):
		return FormatWebM
	default:
		return FormatUnknown
	}
}

// ContentType returns the MIME type of the format, or DefaultContentType.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}

	return DefaultContentType
}

// Extension returns the file extension of the format including the dot.
// Unknown formats are assumed to be WAV, which is what the collaborators expect.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return "." + string(FormatWAV)
	}

	return "." + string(f)
}

// ContentTypeOf sniffs data and returns its MIME type.
func ContentTypeOf(data []byte) string {
	return Detect(data).ContentType()
}

// UploadName returns a file name for data suitable for a multipart upload.
func UploadName(data []byte) string {
	return "audio" + Detect(data).Extension()
}

// Validate rejects empty payloads. Unrecognised formats pass through; the
// collaborators decide whether they can decode them.
func Validate(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyAudio
	}

	return nil
}
