package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const multipartMemory = 8 << 20

// audioFields are the multipart fields an upload may use.
var audioFields = []string{"file", "audio_file"}

// readAudio returns the uploaded recording of a multipart request.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, maxBytesErr
		}

		return nil, core.Invalid("malformed multipart body: %v", err)
	}

	for _, field := range audioFields {
		file, _, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}

		if err != nil {
			return nil, core.Invalid("unreadable upload field %q: %v", field, err)
		}

		data, err := io.ReadAll(file)
		_ = file.Close()

		if err != nil {
			return nil, fmt.Errorf("failed to read upload field %q: %w", field, err)
		}

		if len(data) == 0 {
			return nil, core.Invalid("upload field %q is empty", field)
		}

		return data, nil
	}

	return nil, core.Invalid("multipart field %s is required", strings.Join(audioFields, " or "))
}

// formBool parses an optional boolean form value.
func formBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return false, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.Invalid("%s must be a boolean, got %q", name, raw)
	}

	return value, nil
}
