package api

import (
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/export"
	"github.com/nishad/biobank/internal/report"
	"github.com/nishad/biobank/internal/service"
	"github.com/nishad/biobank/internal/source"
)

// Report handlers

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": report.Definitions(),
		"formats": export.Formats(),
	})
}

// handleRunReport takes a multipart form with one file per input
// (samples, inventory, consents) and optional since and format fields, and
// answers with the report as an attachment.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	kind := mux.Vars(r)["report"]
	def, ok := report.Lookup(kind)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown_report",
			fmt.Sprintf("unknown report %q (available: %s)", kind, strings.Join(report.Kinds(), ", ")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("upload exceeds %d MB", s.maxUpload>>20))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "bad_request", "expected a multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	upload := source.NewUploadSource(s.sheets)
	for _, id := range def.Inputs {
		file, header, err := r.FormFile(id)
		if stderrors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "bad_request", fmt.Sprintf("reading %s: %v", id, err))
			return
		}
		data, err := io.ReadAll(file)
		errors.IgnoreError(s.logger, file.Close(), "closing uploaded "+id)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "bad_request", fmt.Sprintf("reading %s: %v", id, err))
			return
		}
		upload.Add(id, header.Filename, data)
	}

	s.logger.Info().
		Str("request_id", RequestID(r.Context())).
		Str("report", kind).
		Strs("inputs", upload.Inputs()).
		Msg("report requested")

	req := service.Request{Kind: def.Kind}
	if v := strings.TrimSpace(r.FormValue("since")); v != "" {
		since, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "bad_request", fmt.Sprintf("since %q is not a YYYY-MM-DD date", v))
			return
		}
		req.Since = &since
	}
	format, err := export.ParseFormat(r.FormValue("format"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.Format = format

	resp, err := s.service.Render(r.Context(), upload, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", resp.Format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": resp.Filename}))
	w.Header().Set("X-Report-Run-ID", resp.RunID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Data); err != nil {
		s.logger.Warn().Err(err).Str("run_id", resp.RunID).Msg("failed to send report")
	}
}

// writeServiceError maps an error kind to an HTTP status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	s.writeError(w, r, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch errors.GetKind(err) {
	case errors.KindSourceUnavailable:
		return http.StatusBadRequest, "need_input"
	case errors.KindInputSchema:
		return http.StatusUnprocessableEntity, "input_schema"
	case errors.KindEmptyInput:
		return http.StatusUnprocessableEntity, "empty_input"
	case errors.KindParse:
		return http.StatusUnprocessableEntity, "unreadable_input"
	case errors.KindValidation:
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
