package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/output"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

const formMemory = 32 << 20

type indexPage struct {
	Languages  []string
	Selected   []string
	Extensions string
	MaxUpload  int64
	Error      string
}

type download struct {
	Language string
	FileName string
	URL      string
	Text     string
}

type runPage struct {
	ID          string
	MediaName   string
	MediaSize   int64
	State       string
	Progress    int
	Detected    string
	Transcript  string
	Languages   []string
	Selected    []string
	Downloads   []download
	Error       string
	FormError   string
	Working     bool
	Editable    bool
	Complete    bool
	Aborted     bool
	Translating bool
}

type progressResponse struct {
	ID               string             `json:"id"`
	State            string             `json:"state"`
	Progress         int                `json:"progress"`
	DetectedLanguage string             `json:"detected_language,omitempty"`
	Error            string             `json:"error,omitempty"`
	Translations     []progressDownload `json:"translations,omitempty"`
}

type progressDownload struct {
	Language string `json:"language"`
	URL      string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, http.StatusOK, nil, "")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderIndex(w, http.StatusRequestEntityTooLarge, nil, services.Message(media.SizeLimitError(s.maxUpload)))
			return
		}
		s.renderIndex(w, http.StatusBadRequest, nil, "Could not read the upload form.")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	selected := r.MultipartForm.Value["languages"]
	if len(pipeline.NormalizeLanguages(selected)) == 0 {
		s.renderIndex(w, http.StatusBadRequest, selected, "Select at least one target language.")
		return
	}
	file, header, err := r.FormFile("media")
	if err != nil {
		s.renderIndex(w, http.StatusBadRequest, selected, "Select a video file to upload.")
		return
	}
	defer file.Close()

	run, err := s.runner.Start(media.Upload{Filename: header.Filename, Size: header.Size, Body: file})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusBadRequest
			if header.Size > s.maxUpload {
				status = http.StatusRequestEntityTooLarge
			}
		}
		s.renderIndex(w, status, selected, services.Message(err))
		return
	}

	s.addSession(&session{run: run, languages: selected})

	s.background("analyze", run, func(ctx context.Context) error {
		return s.runner.Analyze(ctx, run)
	})
	http.Redirect(w, r, runURL(run.ID()), http.StatusSeeOther)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.renderRun(w, http.StatusOK, sess, "")
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderRun(w, http.StatusBadRequest, sess, "Could not read the form.")
		return
	}
	selected := r.PostForm["languages"]
	transcript := r.PostFormValue("transcript")

	s.mu.Lock()
	if sess.translating || sess.run.State() != pipeline.StateAwaitingEdit {
		s.mu.Unlock()
		http.Redirect(w, r, runURL(sess.run.ID()), http.StatusSeeOther)
		return
	}
	sess.languages = selected
	if len(pipeline.NormalizeLanguages(selected)) == 0 {
		s.mu.Unlock()
		s.renderRun(w, http.StatusBadRequest, sess, "Select at least one target language.")
		return
	}
	sess.translating = true
	s.mu.Unlock()

	run := sess.run
	s.background("translate", run, func(ctx context.Context) error {
		return s.runner.Translate(ctx, run, normalizeNewlines(transcript), selected)
	})
	http.Redirect(w, r, runURL(run.ID()), http.StatusSeeOther)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	snap := sess.run.Snapshot()
	resp := progressResponse{
		ID:               snap.ID,
		State:            snap.State.String(),
		Progress:         snap.Progress,
		DetectedLanguage: detectedLanguage(snap),
		Error:            services.Message(snap.Err),
	}
	for _, t := range snap.Translations {
		resp.Translations = append(resp.Translations, progressDownload{Language: t.Language, URL: fileURL(snap.ID, t.Language)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	translation, ok := sess.run.Translation(r.PathValue("language"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	name := output.FileName(translation.Language)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(translation.Text))
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, selected []string, message string) {
	s.render(w, status, "index.html", indexPage{
		Languages:  s.languages,
		Selected:   selected,
		Extensions: strings.Join(s.extensions, ", "),
		MaxUpload:  s.maxUpload,
		Error:      message,
	})
}

func (s *Server) renderRun(w http.ResponseWriter, status int, sess *session, formError string) {
	snap := sess.run.Snapshot()
	s.mu.RLock()
	selected := append([]string(nil), sess.languages...)
	s.mu.RUnlock()
	if len(snap.Languages) > 0 {
		selected = snap.Languages
	}

	page := runPage{
		ID:          snap.ID,
		MediaName:   snap.MediaName,
		MediaSize:   snap.MediaSize,
		State:       snap.State.String(),
		Progress:    snap.Progress,
		Transcript:  snap.Transcript,
		Languages:   s.languages,
		Selected:    selected,
		FormError:   formError,
		Editable:    snap.State == pipeline.StateAwaitingEdit,
		Complete:    snap.State == pipeline.StateComplete,
		Aborted:     snap.State == pipeline.StateAborted,
		Translating: snap.State == pipeline.StateTranslating,
	}
	page.Working = !page.Editable && !snap.State.IsTerminal()
	if snap.EditedTranscript != "" {
		page.Transcript = snap.EditedTranscript
	}
	page.Detected = detectedLanguage(snap)
	if snap.Err != nil {
		page.Error = services.Message(snap.Err)
	}
	for _, t := range snap.Translations {
		page.Downloads = append(page.Downloads, download{
			Language: t.Language,
			FileName: output.FileName(t.Language),
			URL:      fileURL(snap.ID, t.Language),
			Text:     t.Text,
		})
	}
	s.render(w, status, "run.html", page)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render page failed", slog.String("page", name), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write json failed", slog.String("error", err.Error()))
	}
}

// detectedLanguage is empty until detection has run.
func detectedLanguage(snap pipeline.Snapshot) string {
	switch snap.State {
	case pipeline.StateLanguageDetected, pipeline.StateAwaitingEdit, pipeline.StateTranslating, pipeline.StateComplete:
		return snap.DetectedLanguage.String()
	case pipeline.StateAborted:
		if snap.DetectedLanguage.Known() {
			return snap.DetectedLanguage.String()
		}
	}
	return ""
}

func runURL(id string) string {
	return "/runs/" + url.PathEscape(id)
}

func fileURL(id, language string) string {
	return fmt.Sprintf("/runs/%s/files/%s", url.PathEscape(id), url.PathEscape(language))
}

// normalizeNewlines undoes the CRLF line endings browsers submit for textareas.
func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
