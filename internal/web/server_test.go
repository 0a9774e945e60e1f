package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/langdetect"
	"github.com/HugeFrog24/gpt-video-translator/internal/logging"
	"github.com/HugeFrog24/gpt-video-translator/internal/media"
	"github.com/HugeFrog24/gpt-video-translator/internal/output"
	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
)

const transcript = "1\n00:00:00,000 --> 00:00:02,000\nHello"

var testLanguages = []string{"French", "German", "Spanish"}

type testEnv struct {
	srv       *Server
	http      *httptest.Server
	client    *http.Client
	requests  chan string
	outputDir string
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	exts := []string{"mp4", "avi", "mov", "mp3"}
	env := &testEnv{requests: make(chan string, 10), outputDir: t.TempDir()}
	p, err := pipeline.New(pipeline.Options{
		WorkDir:   t.TempDir(),
		Validator: media.NewValidator(maxUpload, exts),
		Extractor: &pipeline.MockAudioExtractor{ExtractFunc: func(_ context.Context, _, audioFile string) error {
			return os.WriteFile(audioFile, []byte("audio"), 0o644)
		}},
		Transcriber: &pipeline.MockAudioTranscriber{TranscribeFunc: func(context.Context, string) (string, error) {
			return transcript, nil
		}},
		Detector: &pipeline.MockLanguageDetector{DetectFunc: func(string) langdetect.Result {
			return langdetect.Detected("en")
		}},
		Translator: &pipeline.MockSubtitleTranslator{TranslateFunc: func(_ context.Context, text, language string) (string, error) {
			env.requests <- text
			return "[" + language + "]\n" + text, nil
		}},
		Writer: output.NewWriter(env.outputDir),
		Logger: logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	srv, err := New(Options{
		Runner:     p,
		Languages:  testLanguages,
		MaxUpload:  maxUpload,
		Extensions: exts,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env.srv = srv
	env.http = httptest.NewServer(srv.Handler())
	env.client = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	t.Cleanup(func() {
		env.http.Close()
		srv.Close()
	})
	return env
}

func (e *testEnv) upload(t *testing.T, filename string, content []byte, languages ...string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, lang := range languages {
		if err := mw.WriteField("languages", lang); err != nil {
			t.Fatal(err)
		}
	}
	part, err := mw.CreateFormFile("media", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := e.client.Post(e.http.URL+"/runs", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	return resp
}

func (e *testEnv) progress(t *testing.T, location string) progressResponse {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + location + "/progress")
	if err != nil {
		t.Fatalf("progress request failed: %v", err)
	}
	defer resp.Body.Close()
	var payload progressResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	return payload
}

func (e *testEnv) waitFor(t *testing.T, location string, state pipeline.State) progressResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		payload := e.progress(t, location)
		if payload.State == state.String() {
			return payload
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not reach %s, last state %s (%s)", state, payload.State, payload.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestIndexShowsFormAndInstructions(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	resp, err := env.client.Get(env.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Instructions", "Process Video", `value="German"`, "mp4, avi, mov, mp3", "1.0 MiB"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index page missing %q", want)
		}
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	resp := env.upload(t, "clip.mkv", []byte("video"), "French")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "unsupported file type") {
		t.Fatalf("expected extension error in page")
	}
	if len(env.srv.sessions) != 0 {
		t.Fatalf("rejected upload must not create a run")
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	env := newTestEnv(t, 1024)
	resp := env.upload(t, "clip.mp4", bytes.Repeat([]byte("x"), 4096), "French")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "File size exceeds the 0.00 MiB limit") {
		t.Fatalf("expected size message, got %s", body)
	}
}

func TestUploadRequiresLanguage(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	resp := env.upload(t, "clip.mp4", []byte("video"))
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Select at least one target language") {
		t.Fatalf("expected language error, got %d", resp.StatusCode)
	}
}

func TestFullRunThroughWebForm(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	resp := env.upload(t, "clip.mp4", []byte("video"), "French", "German")
	readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/runs/") {
		t.Fatalf("unexpected location %q", location)
	}

	ready := env.waitFor(t, location, pipeline.StateAwaitingEdit)
	if ready.Progress != 50 || ready.DetectedLanguage != "en" {
		t.Fatalf("unexpected progress payload %+v", ready)
	}

	page, err := env.client.Get(env.http.URL + location)
	if err != nil {
		t.Fatal(err)
	}
	html := readBody(t, page)
	for _, want := range []string{"Detected source language: en", "00:00:00,000 --&gt; 00:00:02,000", `value="French" checked`} {
		if !strings.Contains(html, want) {
			t.Fatalf("run page missing %q", want)
		}
	}

	edited := "1\r\n00:00:00,000 --> 00:00:02,000\r\nHello there"
	form := url.Values{"transcript": {edited}, "languages": {"French", "German"}}
	resp, err = env.client.PostForm(env.http.URL+location+"/translate", form)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect after translate, got %d", resp.StatusCode)
	}

	done := env.waitFor(t, location, pipeline.StateComplete)
	if done.Progress != 100 || len(done.Translations) != 2 {
		t.Fatalf("unexpected final payload %+v", done)
	}
	for i := 0; i < 2; i++ {
		if got := <-env.requests; got != "1\n00:00:00,000 --> 00:00:02,000\nHello there" {
			t.Fatalf("translation received %q", got)
		}
	}

	file, err := env.client.Get(env.http.URL + done.Translations[0].URL)
	if err != nil {
		t.Fatal(err)
	}
	text := readBody(t, file)
	if file.StatusCode != http.StatusOK {
		t.Fatalf("expected download, got %d", file.StatusCode)
	}
	if got := file.Header.Get("Content-Disposition"); got != "attachment; filename=French_translation.srt" {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", file.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(text, "[French]\n") {
		t.Fatalf("unexpected file content %q", text)
	}

	resp, err = env.client.PostForm(env.http.URL+location+"/translate", form)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	select {
	case got := <-env.requests:
		t.Fatalf("completed run translated again: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranslateRequiresLanguage(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	resp := env.upload(t, "clip.mp4", []byte("video"), "French")
	readBody(t, resp)
	location := resp.Header.Get("Location")
	env.waitFor(t, location, pipeline.StateAwaitingEdit)

	resp, err := env.client.PostForm(env.http.URL+location+"/translate", url.Values{"transcript": {transcript}})
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Select at least one target language") {
		t.Fatalf("expected language error, got %d", resp.StatusCode)
	}
	if state := env.progress(t, location).State; state != pipeline.StateAwaitingEdit.String() {
		t.Fatalf("run must stay awaiting edit, got %s", state)
	}
}

func TestUnknownRunIsNotFound(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	for _, path := range []string{"/runs/missing", "/runs/missing/progress", "/runs/missing/files/French"} {
		resp, err := env.client.Get(env.http.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		readBody(t, resp)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestFinishedRunsAreEvictedAfterTTL(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	resp := env.upload(t, "done.mp4", []byte("video"), "French")
	readBody(t, resp)
	finished := resp.Header.Get("Location")
	env.waitFor(t, finished, pipeline.StateAwaitingEdit)
	resp, err := env.client.PostForm(env.http.URL+finished+"/translate", url.Values{"transcript": {transcript}, "languages": {"French"}})
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	env.waitFor(t, finished, pipeline.StateComplete)
	<-env.requests

	resp = env.upload(t, "open.mp4", []byte("video"), "French")
	readBody(t, resp)
	pending := resp.Header.Get("Location")
	env.waitFor(t, pending, pipeline.StateAwaitingEdit)

	if n := env.srv.evictExpired(); n != 0 {
		t.Fatalf("nothing should expire yet, evicted %d", n)
	}

	env.srv.now = func() time.Time { return time.Now().Add(defaultSessionTTL + time.Minute) }
	if n := env.srv.evictExpired(); n != 1 {
		t.Fatalf("expected the finished run to be evicted, got %d", n)
	}

	gone, err := env.client.Get(env.http.URL + finished + "/progress")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, gone)
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("expected evicted run to be gone, got %d", gone.StatusCode)
	}
	if state := env.progress(t, pending).State; state != pipeline.StateAwaitingEdit.String() {
		t.Fatalf("run awaiting edit must be kept, got %s", state)
	}
}
