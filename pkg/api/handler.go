package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/plan"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/twpayne/go-geom/encoding/geojson"
)

var log = logrus.WithField("component", "api")

// DefaultSRID tags GeoJSON input geometries when the request names none.
const DefaultSRID = 4326

// APIHandler evaluates plans over GeoJSON features.
type APIHandler struct {
	mem memory.Allocator
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler() *APIHandler {
	return &APIHandler{mem: memory.NewGoAllocator()}
}

// EvaluateRequest is the body of an evaluate call. Plan is a JSON object,
// or a string holding JSON or YAML.
type EvaluateRequest struct {
	Plan     json.RawMessage             `json:"plan"`
	Features *geojson.FeatureCollection `json:"features"`
}

// RowsResponse is returned when the result has no geometry column.
type RowsResponse struct {
	Rows []map[string]any `json:"rows"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// EvaluateHandler handles POST /api/v1/evaluate. The optional srid query
// parameter tags the input geometries. Results with a geometry column come
// back as a FeatureCollection, anything else as rows.
func (h *APIHandler) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	defer r.Body.Close()

	srid := int32(DefaultSRID)
	if s := r.URL.Query().Get("srid"); s != "" {
		if srid, err = cast.ToInt32E(s); err != nil {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid srid %q", s))
			return
		}
	}

	var req EvaluateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Features == nil {
		h.sendError(w, http.StatusBadRequest, "request has no features")
		return
	}

	p, err := decodePlan(req.Plan)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := FeaturesToFrame(req.Features, srid, h.mem)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("failed to read features: %v", err))
		return
	}
	defer in.Release()

	out, err := p.Run(r.Context(), in)
	if err != nil {
		h.sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	defer out.Release()

	log.WithFields(logrus.Fields{"features": in.NumRows(), "rows": out.NumRows()}).Info("evaluated plan")

	resp, err := response(out)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to serialize result: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func decodePlan(raw json.RawMessage) (*plan.Plan, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("request has no plan")
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return plan.Decode([]byte(text))
	}
	return plan.Decode(raw)
}

func response(out *frame.Frame) ([]byte, error) {
	for _, field := range out.Schema().Fields() {
		if arrow.TypeEqual(field.Type, arrow.BinaryTypes.Binary) {
			fc, err := FrameToFeatures(out)
			if err != nil {
				return nil, err
			}
			return json.Marshal(fc)
		}
	}

	rows, err := FrameToRows(out)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RowsResponse{Rows: rows})
}

// sendError sends an error response as JSON
func (h *APIHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	log.WithField("status", statusCode).Debug(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
