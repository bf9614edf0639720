package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/spoold/api"
	"pkt.systems/spoold/internal/ident"
)

// handleSubmit accepts a JSON payload and publishes it to the spool. The
// request body is buffered outside the spool directory so a rejected
// payload never produces a file, not even a provisional one.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return httpError{
			Status: http.StatusMethodNotAllowed,
			Code:   "method_not_allowed",
			Detail: "submit requires POST",
		}
	}
	claims, err := h.requireAuth(r)
	if err != nil {
		return err
	}
	ctx := r.Context()
	logger := pslog.LoggerFromContext(ctx)
	if logger == nil {
		logger = h.logger
	}
	logger.Debug("submit.authorized", "origin", claims.Origin, "gendate", claims.GenDate)

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	buf := newBodySpool(h.spoolThreshold)
	defer buf.Close()

	size, err := io.Copy(buf, body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return httpError{
				Status: http.StatusRequestEntityTooLarge,
				Code:   "payload_too_large",
				Detail: "request body exceeds the configured limit",
			}
		}
		return httpError{
			Status: http.StatusBadRequest,
			Code:   "invalid_body",
			Detail: "could not read request body",
		}
	}

	reader, err := buf.Reader()
	if err != nil {
		return err
	}
	if err := validateJSONStream(reader); err != nil {
		logger.Debug("submit.invalid_json", "bytes", size, "error", err)
		return httpError{
			Status: http.StatusBadRequest,
			Code:   "invalid_body",
			Detail: "payload is not valid JSON",
		}
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return err
	}

	id := ident.New(ident.DefaultLength)
	written, err := h.spool.Store(ctx, id, reader)
	if err != nil {
		logger.Warn("submit.spool_write_failed", "id", id, "error", err)
		return httpError{
			Status: http.StatusInternalServerError,
			Code:   "spool_write_failed",
			Detail: "could not persist submission",
		}
	}
	h.metrics.IncSubmissions()
	logger.Info("submit.accepted", "id", id, "bytes", written, "origin", claims.Origin)

	h.writeJSON(w, http.StatusOK, api.SubmitResponse{
		ID:      id,
		Status:  "ok",
		Message: "submission accepted",
	})
	return nil
}

// handleStatus reports whether a submission is still being written. Entries
// already published (or never seen) are indistinguishable once the consumer
// may have picked them up, so both answer not_found.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		return httpError{
			Status: http.StatusMethodNotAllowed,
			Code:   "method_not_allowed",
			Detail: "status requires GET",
		}
	}
	if _, err := h.requireAuth(r); err != nil {
		return err
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" || !ident.Valid(id) {
		return httpError{
			Status: http.StatusBadRequest,
			Code:   "invalid_id",
			Detail: "id must be a non-empty alphanumeric string",
		}
	}
	if !h.spool.HasPending(id) {
		return httpError{
			Status: http.StatusNotFound,
			Code:   "not_found",
			Detail: "no in-flight submission with that id",
		}
	}
	h.writeJSON(w, http.StatusOK, api.StatusResponse{
		ID:     id,
		Status: "found",
	})
	return nil
}

// handleMetrics serves the Prometheus scrape. It sits behind the same
// bearer check as the ingestion endpoints; deployments that need an open
// scrape target use the dedicated metrics listener instead.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		return httpError{
			Status: http.StatusMethodNotAllowed,
			Code:   "method_not_allowed",
			Detail: "metrics requires GET",
		}
	}
	if _, err := h.requireAuth(r); err != nil {
		return err
	}
	h.metrics.Handler().ServeHTTP(w, r)
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusOK)
	return nil
}

// validateJSONStream checks that r holds exactly one syntactically valid
// JSON value without materializing it. Trailing data after the first value
// is rejected.
func validateJSONStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	depth := 0
	seen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if !seen {
				return errors.New("empty body")
			}
			if depth != 0 {
				return errors.New("truncated JSON value")
			}
			return nil
		}
		if err != nil {
			return err
		}
		if seen && depth == 0 {
			return errors.New("trailing data after JSON value")
		}
		seen = true
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
}
