package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hackclub/mediafield/internal/binder"
	"github.com/hackclub/mediafield/internal/forms"
	"github.com/hackclub/mediafield/internal/widget"
)

const maxUploadSize = 32 << 20 // 32 MB

type createFormRequest struct {
	Markup      string             `json:"markup"`
	CurrentFile *forms.CurrentFile `json:"currentFile,omitempty"`
}

type urlSourceRequest struct {
	URL string `json:"url"`
}

// HandleCurrentForm sends the browser to the form it was last editing,
// creating a fresh one when there is none.
func (s *Server) HandleCurrentForm(w http.ResponseWriter, r *http.Request) {
	if id := s.sessionManager.FormID(r); id != "" {
		if _, ok := s.forms.Get(id); ok {
			http.Redirect(w, r, "/admin/forms/"+id+"/", http.StatusFound)
			return
		}
	}

	form, err := s.forms.Create("")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create form")
		http.Error(w, "Failed to create form", http.StatusInternalServerError)
		return
	}
	if err := s.sessionManager.SetFormID(w, r, form.ID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remember form")
	}
	http.Redirect(w, r, "/admin/forms/"+form.ID+"/", http.StatusFound)
}

func (s *Server) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req createFormRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	var opts []forms.CreateOption
	if req.CurrentFile != nil {
		opts = append(opts, forms.WithCurrentFile(req.CurrentFile.URL, req.CurrentFile.Name))
	}

	form, err := s.forms.Create(req.Markup, opts...)
	if err != nil {
		if errors.Is(err, forms.ErrInvalidCurrentFile) || errors.Is(err, binder.ErrMissingElement) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error().Err(err).Msg("failed to create form")
		http.Error(w, "Failed to create form", http.StatusInternalServerError)
		return
	}
	if err := s.sessionManager.SetFormID(w, r, form.ID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remember form")
	}

	s.logger.Info().Str("form", form.ID).Msg("form created")
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":  form.ID,
		"url": "/admin/forms/" + form.ID + "/",
	})
}

func (s *Server) HandleGetForm(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())

	page, err := form.Render()
	if err != nil {
		s.logger.Error().Err(err).Str("form", form.ID).Msg("failed to render form")
		http.Error(w, "Failed to render form", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, page)
}

func (s *Server) HandleDeleteForm(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())
	s.forms.Remove(form.ID)
	if s.sessionManager.FormID(r) == form.ID {
		if err := s.sessionManager.Clear(w, r); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear session")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAppendMarkup adds raw HTML to the end of the form.
func (s *Server) HandleAppendMarkup(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		http.Error(w, "Markup is required", http.StatusBadRequest)
		return
	}

	if err := form.AppendMarkup(string(body)); err != nil {
		s.logger.Error().Err(err).Str("form", form.ID).Msg("failed to append markup")
		http.Error(w, "Failed to append markup", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClick presses a trigger button and returns the dialog it opened.
func (s *Server) HandleClick(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid trigger index", http.StatusBadRequest)
		return
	}

	d, ok := form.Click(index)
	if !ok {
		http.Error(w, "Trigger not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"dialogId": d.ID,
		"formId":   form.ID,
	})
}

// HandleDialogUpload picks a file in an open dialog. The body is either a
// multipart form with a "file" part or JSON {"url": "..."}. The upload runs
// in the background unless wait=true is given.
func (s *Server) HandleDialogUpload(w http.ResponseWriter, r *http.Request) {
	d, form, ok := s.forms.Dialog(chi.URLParam(r, "dialogID"))
	if !ok {
		http.Error(w, "Dialog not found", http.StatusNotFound)
		return
	}

	src, err := readSource(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log := s.logger.With().Str("form", form.ID).Str("dialog", d.ID).Logger()

	// the upload outlives this request unless the caller waits for it
	if err := d.Upload(context.WithoutCancel(r.Context()), src); err != nil {
		switch {
		case errors.Is(err, widget.ErrUploadInProgress):
			http.Error(w, "Upload already in progress", http.StatusConflict)
		case errors.Is(err, widget.ErrDialogClosed):
			http.Error(w, "Dialog closed", http.StatusGone)
		default:
			log.Error().Err(err).Msg("failed to start upload")
			http.Error(w, "Failed to start upload", http.StatusInternalServerError)
		}
		return
	}
	log.Info().Str("filename", src.Filename).Str("url", src.URL).Msg("upload started")

	if r.URL.Query().Get("wait") != "true" {
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"dialogId": d.ID,
			"formId":   form.ID,
		})
		return
	}

	res, err := d.Wait(r.Context())
	if r.Context().Err() != nil {
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"event": "error",
			"error": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":     res.Event,
		"secureUrl": res.Info.SecureURL,
		"info":      res.Info,
	})
}

// HandleDialogClose dismisses a dialog without uploading.
func (s *Server) HandleDialogClose(w http.ResponseWriter, r *http.Request) {
	d, _, ok := s.forms.Dialog(chi.URLParam(r, "dialogID"))
	if !ok {
		http.Error(w, "Dialog not found", http.StatusNotFound)
		return
	}
	d.Close()
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubmit plays the part of the form's action: it echoes the hosted
// URL the browser sent back.
func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
	} else if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	submitted := r.PostFormValue("cloudinary_url")
	s.logger.Info().
		Str("form", form.ID).
		Str("cloudinary_url", submitted).
		Bool("matches_form", submitted == form.SecureURL()).
		Msg("form submitted")

	s.writeJSON(w, http.StatusOK, map[string]string{
		"cloudinary_url": submitted,
	})
}

func readSource(w http.ResponseWriter, r *http.Request) (widget.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req urlSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return widget.Source{}, errors.New("invalid request body")
		}
		if req.URL == "" {
			return widget.Source{}, errors.New("url is required")
		}
		return widget.Source{URL: req.URL}, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return widget.Source{}, errors.New("failed to parse upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return widget.Source{}, errors.New("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return widget.Source{}, errors.New("failed to read upload")
	}
	return widget.Source{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
