// Package api provides primitives to interact with the tiler HTTP API.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy HealthResponseStatus = "healthy"
)

// Defines values for BandPolicy.
const (
	Auto   BandPolicy = "auto"
	Strict BandPolicy = "strict"
)

// Defines values for Normalization.
const (
	Clip   Normalization = "clip"
	Minmax Normalization = "minmax"
	None   Normalization = "none"
)

// Defines values for ValidationErrorResponseError.
const (
	VALIDATIONERROR ValidationErrorResponseError = "VALIDATION_ERROR"
)

// BandPolicy What to do when the selected bands exceed the output format's limit
type BandPolicy string

// Normalization How 16-bit sources are reduced to 8 bits
type Normalization string

// Advisory Notice that bands were dropped to fit the output format
type Advisory struct {
	Format    string `json:"format"`
	Kept      []int  `json:"kept"`
	Message   string `json:"message"`
	Requested []int  `json:"requested"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Details   *map[string]interface{} `json:"details,omitempty"`
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
}

// EstimateResponse Result of a header-only scan of a tile directory
type EstimateResponse struct {
	// Available Host memory available for allocation in bytes, 0 when unknown
	Available uint64   `json:"available"`
	Bands     int      `json:"bands"`
	Bytes     uint64   `json:"bytes"`
	Depth     string   `json:"depth"`
	Fits      bool     `json:"fits"`
	Height    int      `json:"height"`
	Ignored   []string `json:"ignored"`
	Tiles     int      `json:"tiles"`
	Width     int      `json:"width"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`

	// Uptime Server uptime in seconds
	Uptime  *int    `json:"uptime,omitempty"`
	Version *string `json:"version,omitempty"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// MergeRequest Either dir or manifest selects the tiles
type MergeRequest struct {
	Dir *string `json:"dir,omitempty"`

	// Ext Tile extension filter for dir merges
	Ext *string `json:"ext,omitempty"`

	// Fold Manifest fold to merge
	Fold     *string `json:"fold,omitempty"`
	Manifest *string `json:"manifest,omitempty"`

	// Output Merged file; its extension picks the format
	Output string      `json:"output"`
	Policy *BandPolicy `json:"policy,omitempty"`
}

// MergeResponse defines model for MergeResponse.
type MergeResponse struct {
	Advisory *Advisory `json:"advisory,omitempty"`
	Bands    int       `json:"bands"`
	Depth    string    `json:"depth"`
	Format   string    `json:"format"`
	Height   int       `json:"height"`
	Ignored  []string  `json:"ignored"`
	Output   string    `json:"output"`
	Tiles    int       `json:"tiles"`
	Width    int       `json:"width"`
}

// SplitRequest defines model for SplitRequest.
type SplitRequest struct {
	AllowUnmergeable *bool `json:"allow_unmergeable,omitempty"`

	// Bands 0-based band indices in output order; all bands when omitted
	Bands *[]int  `json:"bands,omitempty"`
	Base  *string `json:"base,omitempty"`

	// Ext Tile extension; defaults to the input's
	Ext   *string `json:"ext,omitempty"`
	Fold  *string `json:"fold,omitempty"`
	Input string  `json:"input"`

	// Manifest Manifest file written next to the tiles (.csv or .yaml)
	Manifest   *string        `json:"manifest,omitempty"`
	Normalize  *Normalization `json:"normalize,omitempty"`
	OutputDir  string         `json:"output_dir"`
	Pattern    *string        `json:"pattern,omitempty"`
	Policy     *BandPolicy    `json:"policy,omitempty"`
	Scene      *string        `json:"scene,omitempty"`
	TileHeight int            `json:"tile_height"`
	TileWidth  int            `json:"tile_width"`
}

// SplitResponse defines model for SplitResponse.
type SplitResponse struct {
	Advisory *Advisory `json:"advisory,omitempty"`
	Bands    int       `json:"bands"`
	Cols     int       `json:"cols"`
	Depth    string    `json:"depth"`
	Files    []string  `json:"files"`
	Format   string    `json:"format"`
	Height   int       `json:"height"`
	Manifest *string   `json:"manifest,omitempty"`
	Rows     int       `json:"rows"`
	Tiles    int       `json:"tiles"`
	Uploaded *[]string `json:"uploaded,omitempty"`
	Width    int       `json:"width"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            ValidationErrorResponseError `json:"error"`
	Message          string                       `json:"message"`
	RequestId        *string                      `json:"request_id,omitempty"`
	ValidationErrors []struct {
		Code    *string `json:"code,omitempty"`
		Field   string  `json:"field"`
		Message string  `json:"message"`
	} `json:"validation_errors"`
}

// ValidationErrorResponseError defines model for ValidationErrorResponse.Error.
type ValidationErrorResponseError string

// GetMergeEstimateParams defines parameters for GetMergeEstimate.
type GetMergeEstimateParams struct {
	// Dir Directory to scan
	Dir string `form:"dir" json:"dir"`

	// Ext Tile extension filter
	Ext *string `form:"ext,omitempty" json:"ext,omitempty"`
}

// CreateSplitJSONRequestBody defines body for CreateSplit for application/json ContentType.
type CreateSplitJSONRequestBody = SplitRequest

// CreateMergeJSONRequestBody defines body for CreateMerge for application/json ContentType.
type CreateMergeJSONRequestBody = MergeRequest

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Merge a tile directory or manifest into one image
	// (POST /merge)
	CreateMerge(w http.ResponseWriter, r *http.Request)
	// Scan a tile directory and estimate the merged size
	// (GET /merge/estimate)
	GetMergeEstimate(w http.ResponseWriter, r *http.Request, params GetMergeEstimateParams)
	// Split an image into tiles
	// (POST /split)
	CreateSplit(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetHealth(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// CreateMerge operation middleware
func (siw *ServerInterfaceWrapper) CreateMerge(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.CreateMerge(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetMergeEstimate operation middleware
func (siw *ServerInterfaceWrapper) GetMergeEstimate(w http.ResponseWriter, r *http.Request) {

	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params GetMergeEstimateParams

	// ------------- Required query parameter "dir" -------------

	if paramValue := r.URL.Query().Get("dir"); paramValue != "" {

	} else {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "dir"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "dir", r.URL.Query(), &params.Dir)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "dir", Err: err})
		return
	}

	// ------------- Optional query parameter "ext" -------------

	err = runtime.BindQueryParameter("form", true, false, "ext", r.URL.Query(), &params.Ext)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "ext", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetMergeEstimate(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// CreateSplit operation middleware
func (siw *ServerInterfaceWrapper) CreateSplit(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.CreateSplit(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching OpenAPI spec.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux creates http.Handler with routing matching OpenAPI spec based on the provided mux.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{
		BaseRouter: r,
	})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/merge", wrapper.CreateMerge)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/merge/estimate", wrapper.GetMergeEstimate)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/split", wrapper.CreateSplit)
	})

	return r
}
