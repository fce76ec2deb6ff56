package web

// handlers_common.go holds the request parsing helpers shared by the
// handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/ingest"
	"github.com/JonMunkholm/backoffice/internal/logging"
)

// maxJSONBody bounds rule and test request bodies.
const maxJSONBody = 1 << 20

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

// listResponse wraps list results.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

// sampleRequest is the body of the rule test endpoints.
type sampleRequest struct {
	Supplier   string      `json:"supplier"`
	SampleData core.Sample `json:"sample_data"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// pageParams reads page and size query parameters.
func pageParams(r *http.Request, defaultSize int) core.PageRequest {
	return core.PageRequest{
		Page: parseIntParam(r, "page", 1),
		Size: parseIntParam(r, "size", defaultSize),
	}
}

// int64Param parses a positive integer from a URL parameter or query value.
func int64Param(name, val string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return int64Param(name, chi.URLParam(r, name))
}

// readUpload parses the multipart form of the import and preview endpoints:
// file, supplier, and optional file_type and encoding.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.ImportRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ImportRequest{}, err
		}
		return core.ImportRequest{}, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err)
	}
	// The table is fully read before returning, so spilled parts can go.
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.ImportRequest{}, fmt.Errorf("%w: no file provided", core.ErrInvalidImport)
	}
	defer file.Close()

	supplier := strings.TrimSpace(r.FormValue("supplier"))
	if supplier == "" {
		return core.ImportRequest{}, fmt.Errorf("%w: supplier is required", core.ErrInvalidImport)
	}

	fileType := core.UploadFileType(header.Filename)
	if v := r.FormValue("file_type"); v != "" {
		t, ok := ingest.ParseFileType(v)
		if !ok {
			return core.ImportRequest{}, fmt.Errorf("%w: unknown file type %q", core.ErrInvalidImport, v)
		}
		fileType = t
	}

	table, err := readTable(header, file, s.encoding(r))
	if err != nil {
		return core.ImportRequest{}, err
	}
	logger := logging.FromContext(r.Context())
	for _, warn := range table.Warnings {
		logger.Warn("file warning", "file", header.Filename, "row", warn.Row, "message", warn.Message)
	}

	return core.ImportRequest{
		Supplier: supplier,
		FileName: header.Filename,
		FileType: fileType,
		Table:    table,
	}, nil
}

func readTable(header *multipart.FileHeader, file multipart.File, encoding string) (*ingest.Table, error) {
	table, err := ingest.Read(header.Filename, file, ingest.Options{Encoding: encoding})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	return table, nil
}

// encoding is the form override, else the configured default.
func (s *Server) encoding(r *http.Request) string {
	if v := strings.TrimSpace(r.FormValue("encoding")); v != "" {
		return v
	}
	return s.cfg.Import.Encoding
}
