package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bookscan/bookscan-server/internal/logging"
	"github.com/bookscan/bookscan-server/internal/pipeline"
)

// multipartMemory is how much of a multipart body is held in memory before
// file parts spill to disk.
const multipartMemory = 32 << 20

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		logger := logging.WithRequestID(cfg.Logger, requestID)

		if cfg.Converter == nil {
			writeConversionError(w, pipeline.ServerMisconfiguration("Conversion is not configured on this server", nil))
			return
		}

		if cfg.MaxUploadBytes > 0 {
			if r.ContentLength > cfg.MaxUploadBytes {
				e := pipeline.ResourceExhaustion("File too large", nil)
				e.Details = "upload limit is " + strconv.FormatInt(cfg.MaxUploadBytes, 10) + " bytes"
				writeConversionError(w, e)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeConversionError(w, formError(err, cfg.MaxUploadBytes))
			return
		}
		defer r.MultipartForm.RemoveAll()

		req := pipeline.Request{
			Interval: r.FormValue("interval"),
			Mode:     r.FormValue("mode"),
		}

		file, header, err := r.FormFile("video")
		switch {
		case err == nil:
			defer file.Close()
			req.Filename = header.Filename
			req.Video = file
		case len(r.MultipartForm.Value["video"]) > 0:
			// A part without a filename is parsed as a plain value.
			req.Video = strings.NewReader(r.MultipartForm.Value["video"][0])
		}

		res, err := cfg.Converter.Convert(r.Context(), req)
		if err != nil {
			writeConversionError(w, err)
			return
		}
		defer res.Cleanup()

		deliverDocument(w, res, logger)
	}
}

func formError(err error, limit int64) *pipeline.Error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		e := pipeline.ResourceExhaustion("File too large", err)
		e.Details = "upload limit is " + strconv.FormatInt(limit, 10) + " bytes"
		return e
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		e := pipeline.BadInput("Missing 'video' file")
		e.Details = "request must be multipart/form-data"
		return e
	default:
		e := pipeline.BadInput("Malformed upload")
		e.Details = err.Error()
		return e
	}
}

func deliverDocument(w http.ResponseWriter, res *pipeline.Result, logger *slog.Logger) {
	f, err := os.Open(res.Document.Path)
	if err != nil {
		writeConversionError(w, pipeline.ProcessingFailure("Conversion failed", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeConversionError(w, pipeline.ProcessingFailure("Conversion failed", err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", `attachment; filename="`+OutputFilename+`"`)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set(HeaderPages, strconv.Itoa(res.Document.Pages))
	h.Set(HeaderFrames, strconv.Itoa(res.Frames))
	h.Set(HeaderMode, string(res.Mode))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		logger.Warn("document delivery interrupted", "conversion_id", res.ID, "error", err)
	}
}

func writeConversionError(w http.ResponseWriter, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		pe = pipeline.NewError(pipeline.KindOf(err), "Conversion failed", err)
	}
	WriteError(w, statusForKind(pe.Kind), pe.Message, pe.Details, string(pe.Kind))
}

func statusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindBadInput, pipeline.KindExtractionEmpty:
		return http.StatusBadRequest
	case pipeline.KindResourceExhaustion:
		return http.StatusRequestEntityTooLarge
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindServerMisconfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
