package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/tiler/internal/api"
	"github.com/kiesman99/tiler/internal/merger"
	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/internal/splitter"
	"github.com/kiesman99/tiler/pkg/tile"
)

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string

	splitter *splitter.Splitter
	merger   *merger.Merger

	// Root confines every path in a request to this directory when set.
	// Relative request paths resolve against it.
	Root string
}

// NewServer creates a new server instance. Requests that set a band policy
// run on copies of sp and m with their own selector.
func NewServer(version string, sp *splitter.Splitter, m *merger.Merger) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		splitter:  sp,
		merger:    m,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	s.writeJSON(w, http.StatusOK, response)
}

// CreateSplit cuts the requested image into tiles on the server's disk
func (s *Server) CreateSplit(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.CreateSplitJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	if field, err := validateSplitRequest(&req); err != nil {
		s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
		return
	}

	opts, sel, err := s.splitOptions(&req)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), &requestID, nil)
		return
	}

	sp := *s.splitter
	sp.Selector = sel
	result, err := sp.Split(r.Context(), *opts)
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}

	response := api.SplitResponse{
		Tiles:    result.Tiles,
		Rows:     result.Rows,
		Cols:     result.Cols,
		Width:    result.Width,
		Height:   result.Height,
		Bands:    result.Bands,
		Depth:    result.Depth.String(),
		Format:   string(result.Format),
		Files:    result.Files,
		Advisory: toAdvisory(result.Advisory),
	}
	if result.Manifest != "" {
		response.Manifest = &result.Manifest
	}
	if len(result.Uploaded) > 0 {
		response.Uploaded = &result.Uploaded
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, response)
}

// CreateMerge assembles a tile directory or manifest into one image
func (s *Server) CreateMerge(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.CreateMergeJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	if field, err := validateMergeRequest(&req); err != nil {
		s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
		return
	}

	mode, err := policyMode(req.Policy)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), &requestID, nil)
		return
	}
	output, err := s.resolvePath(req.Output)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), &requestID, nil)
		return
	}

	m := *s.merger
	m.Selector = tile.NewBandSelector(mode)
	m.Root = s.Root

	var result *merger.Result
	if req.Manifest != nil {
		path, perr := s.resolvePath(*req.Manifest)
		if perr != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
				perr.Error(), &requestID, nil)
			return
		}
		result, err = m.MergeManifest(r.Context(), merger.ManifestOptions{
			Manifest: path,
			Fold:     deref(req.Fold),
			Output:   output,
		})
	} else {
		dir, perr := s.resolvePath(*req.Dir)
		if perr != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
				perr.Error(), &requestID, nil)
			return
		}
		result, err = m.Merge(r.Context(), merger.Options{
			Dir:    dir,
			Ext:    deref(req.Ext),
			Output: output,
		})
	}
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}

	response := api.MergeResponse{
		Output:   result.Output,
		Width:    result.Width,
		Height:   result.Height,
		Bands:    result.Bands,
		Depth:    result.Depth.String(),
		Format:   string(result.Format),
		Tiles:    result.Tiles,
		Ignored:  nonNil(result.Ignored),
		Advisory: toAdvisory(result.Advisory),
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, response)
}

// GetMergeEstimate scans a directory without decoding any pixels
func (s *Server) GetMergeEstimate(w http.ResponseWriter, r *http.Request, params api.GetMergeEstimateParams) {
	requestID := requestIDFrom(r)

	dir, err := s.resolvePath(params.Dir)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), &requestID, nil)
		return
	}

	scan, err := s.merger.Scan(r.Context(), dir, deref(params.Ext))
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}

	response := api.EstimateResponse{
		Width:     scan.Canvas.Width,
		Height:    scan.Canvas.Height,
		Bands:     scan.Canvas.Bands,
		Depth:     scan.Canvas.Depth.String(),
		Tiles:     len(scan.Records),
		Ignored:   nonNil(scan.Ignored),
		Bytes:     scan.Bytes,
		Available: scan.Available,
		Fits:      scan.Fits(),
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, response)
}

// validateSplitRequest returns the offending field with the error
func validateSplitRequest(req *api.SplitRequest) (string, error) {
	if req.Input == "" {
		return "input", fmt.Errorf("input is required")
	}
	if req.OutputDir == "" {
		return "output_dir", fmt.Errorf("output_dir is required")
	}
	if req.TileWidth <= 0 {
		return "tile_width", fmt.Errorf("tile_width must be positive")
	}
	if req.TileHeight <= 0 {
		return "tile_height", fmt.Errorf("tile_height must be positive")
	}
	return "", nil
}

func validateMergeRequest(req *api.MergeRequest) (string, error) {
	hasDir := req.Dir != nil && *req.Dir != ""
	hasManifest := req.Manifest != nil && *req.Manifest != ""
	switch {
	case !hasDir && !hasManifest:
		return "dir", fmt.Errorf("one of dir or manifest is required")
	case hasDir && hasManifest:
		return "manifest", fmt.Errorf("dir and manifest are mutually exclusive")
	}
	if req.Output == "" {
		return "output", fmt.Errorf("output is required")
	}
	return "", nil
}

// splitOptions converts the API request to splitter options
func (s *Server) splitOptions(req *api.SplitRequest) (*splitter.Options, *tile.BandSelector, error) {
	input, err := s.resolvePath(req.Input)
	if err != nil {
		return nil, nil, err
	}
	outDir, err := s.resolvePath(req.OutputDir)
	if err != nil {
		return nil, nil, err
	}

	opts := &splitter.Options{
		Input:      input,
		OutputDir:  outDir,
		TileWidth:  req.TileWidth,
		TileHeight: req.TileHeight,
		Base:       deref(req.Base),
		Ext:        deref(req.Ext),
		Pattern:    deref(req.Pattern),
		Manifest:   deref(req.Manifest),
		Scene:      deref(req.Scene),
		Fold:       deref(req.Fold),
	}
	if opts.Manifest != "" && s.Root != "" {
		// the splitter writes relative manifests next to the tiles
		target := opts.Manifest
		if !filepath.IsAbs(target) {
			target = filepath.Join(outDir, target)
		}
		if !merger.Within(s.Root, target) {
			return nil, nil, fmt.Errorf("%w: manifest %s is outside the server root", tile.ErrPathOutsideRoot, target)
		}
	}
	if req.Bands != nil {
		opts.Bands = tile.BandSelection(*req.Bands)
	}
	if req.AllowUnmergeable != nil {
		opts.AllowUnmergeable = *req.AllowUnmergeable
	}
	if req.Normalize != nil {
		opts.Normalize, err = raster.ParseNormalization(string(*req.Normalize))
		if err != nil {
			return nil, nil, err
		}
	}

	mode, err := policyMode(req.Policy)
	if err != nil {
		return nil, nil, err
	}
	return opts, tile.NewBandSelector(mode), nil
}

// resolvePath joins relative paths onto Root and rejects paths that leave it
func (s *Server) resolvePath(p string) (string, error) {
	if s.Root == "" {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Root, p)
	}
	p = filepath.Clean(p)
	if !merger.Within(s.Root, p) {
		return "", fmt.Errorf("%w: %s is outside the server root", tile.ErrPathOutsideRoot, p)
	}
	return p, nil
}

func policyMode(p *api.BandPolicy) (tile.PolicyMode, error) {
	if p == nil {
		return tile.PolicyAuto, nil
	}
	return tile.ParsePolicyMode(string(*p))
}

// errorKinds maps error kinds to HTTP statuses, first match wins
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
	{tile.ErrInvalidGeometry, http.StatusBadRequest, "INVALID_GEOMETRY"},
	{tile.ErrInvalidPattern, http.StatusBadRequest, "INVALID_PATTERN"},
	{tile.ErrInvalidBandSelection, http.StatusBadRequest, "INVALID_BAND_SELECTION"},
	{tile.ErrUnparseableFilename, http.StatusBadRequest, "UNPARSEABLE_FILENAME"},
	{tile.ErrPathOutsideRoot, http.StatusBadRequest, "PATH_OUTSIDE_ROOT"},
	{tile.ErrNoTilesFound, http.StatusNotFound, "NO_TILES_FOUND"},
	{tile.ErrCanvasTooLarge, http.StatusRequestEntityTooLarge, "CANVAS_TOO_LARGE"},
	{tile.ErrInconsistentTileFormat, http.StatusUnprocessableEntity, "INCONSISTENT_TILE_FORMAT"},
	{tile.ErrCropOutOfBounds, http.StatusInternalServerError, "OUT_OF_BOUNDS"},
	{tile.ErrPasteOutOfBounds, http.StatusInternalServerError, "OUT_OF_BOUNDS"},
	{tile.ErrIORead, http.StatusInternalServerError, "IO_READ_FAILURE"},
	{tile.ErrIOWrite, http.StatusInternalServerError, "IO_WRITE_FAILURE"},
}

// handleError maps split and merge failures to error responses
func (s *Server) handleError(w http.ResponseWriter, err error, requestID *string) {
	var details map[string]interface{}
	var mismatch *tile.FormatMismatchError
	if errors.As(err, &mismatch) {
		details = map[string]interface{}{
			"path":           mismatch.Path,
			"expected_bands": mismatch.WantBands,
			"got_bands":      mismatch.GotBands,
			"expected_depth": mismatch.WantDepth.String(),
			"got_depth":      mismatch.GotDepth.String(),
		}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			if k.status >= http.StatusInternalServerError {
				log.Printf("Request %s failed: %v", *requestID, err)
			}
			s.writeErrorResponse(w, k.status, k.code, err.Error(), requestID, details)
			return
		}
	}

	log.Printf("Request %s failed: %v", *requestID, err)
	s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Internal server error", requestID, nil)
}

// HandleParamError reports query parameter binding failures
func (s *Server) HandleParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFrom(r)

	field := "request"
	var required *api.RequiredParamError
	var invalid *api.InvalidParamFormatError
	switch {
	case errors.As(err, &required):
		field = required.ParamName
	case errors.As(err, &invalid):
		field = invalid.ParamName
	}
	s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			{
				Field:   field,
				Message: message,
			},
		},
	}

	s.writeJSON(w, http.StatusBadRequest, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func toAdvisory(a *tile.Advisory) *api.Advisory {
	if a == nil {
		return nil
	}
	return &api.Advisory{
		Format:    string(a.Format),
		Requested: a.Requested,
		Kept:      a.Kept,
		Message:   a.String(),
	}
}

// requestIDFrom prefers the ID assigned by the RequestID middleware
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
