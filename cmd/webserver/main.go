package main

import (
	"context"
	"embed"
	"encoding/gob"
	"errors"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"examgen"
	"examgen/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionName = "examgen-session"

// Generator is the part of examgen.Generator the server drives
type Generator interface {
	Generate(ctx context.Context, req examgen.GenerateRequest) (*examgen.Result, error)
	Flush(ctx context.Context) error
}

type Server struct {
	gen       Generator
	history   examgen.HistoryLog
	store     sessions.Store
	templates map[string]*template.Template
	timeout   time.Duration

	// one generation at a time; the cache and history have a single writer
	mu sync.Mutex
}

// FormValues are the generation form fields, remembered per browser
type FormValues struct {
	Subject    string
	Topic      string
	QType      string
	Difficulty string
	BloomLevel string
	N          int
	MaxK       int
	UseCache   bool
}

func defaultForm() FormValues {
	return FormValues{
		Subject:    "science",
		Topic:      "photosynthesis",
		QType:      string(examgen.QTypeMCQ),
		Difficulty: string(examgen.DifficultyMedium),
		BloomLevel: string(examgen.BloomUnderstand),
		N:          5,
		MaxK:       12,
		UseCache:   true,
	}
}

func init() {
	gob.Register(FormValues{})
}

func main() {
	cfg, err := examgen.LoadConfig(os.Getenv("EXAMGEN_CONFIG"))
	if err != nil {
		examgen.Log().Fatalf("Failed to load config: %v", err)
	}
	if err := examgen.SetLogLevel(cfg.LogLevel); err != nil {
		examgen.Log().Fatalf("Invalid log level: %v", err)
	}
	defer examgen.Sync()

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, app.Needs{Completion: true, Index: true, Store: true})
	if err != nil {
		examgen.Log().Fatalf("Failed to start: %v", err)
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			examgen.Log().Errorf("Failed to close: %v", err)
		}
	}()

	tpl, err := examgen.LoadPromptTemplate(os.Getenv("EXAMGEN_PROMPT_PATH"))
	if err != nil {
		examgen.Log().Fatalf("Failed to load prompt: %v", err)
	}

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		examgen.Log().Warn("SESSION_SECRET is not set, using a development key")
		secret = "examgen-dev-session-key"
	}

	server := NewServer(a.Generator(tpl), a.History, sessions.NewCookieStore([]byte(secret)), 10*time.Minute)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8180"
	}

	examgen.Log().Infof("Starting server on port %s", port)
	if err := http.ListenAndServe(":"+port, server.Routes()); err != nil {
		examgen.Log().Errorf("Server stopped: %v", err)
	}
}

// NewServer parses the page templates
func NewServer(gen Generator, history examgen.HistoryLog, store sessions.Store, timeout time.Duration) *Server {
	templates := make(map[string]*template.Template)
	for _, name := range []string{"form", "result", "history"} {
		templates[name] = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html"))
	}
	return &Server{
		gen:       gen,
		history:   history,
		store:     store,
		templates: templates,
		timeout:   timeout,
	}
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleForm)
	r.Post("/generate", s.handleGenerate)
	r.Get("/history", s.handleHistory)
	return r
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, http.StatusOK, s.lastForm(r), "")
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	form := parseForm(r)
	session, _ := s.store.Get(r, sessionName)
	session.Values["form"] = form
	if err := session.Save(r, w); err != nil {
		examgen.Log().Warnf("Failed to save session: %v", err)
	}

	params := form.Params()
	if err := params.Validate(); err != nil {
		s.renderForm(w, http.StatusBadRequest, form, err.Error())
		return
	}

	res, err := s.generate(r.Context(), examgen.GenerateRequest{
		Params:   params,
		UseCache: form.UseCache,
		MaxK:     form.MaxK,
	})
	if err != nil {
		examgen.Log().Errorf("Generation failed for %s/%s: %v", params.Subject, params.Topic, err)
		status := http.StatusInternalServerError
		if errors.Is(err, examgen.ErrIndexUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.renderForm(w, status, form, "Nothing was generated: "+err.Error())
		return
	}

	s.render(w, http.StatusOK, "result", map[string]interface{}{
		"Result": res,
	})
}

func (s *Server) generate(ctx context.Context, req examgen.GenerateRequest) (*examgen.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.gen.Flush(context.Background()); err != nil {
		examgen.Log().Errorf("Failed to flush cache: %v", err)
	}
	return res, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	last := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("last")); err == nil && v > 0 {
		last = v
	}
	records, err := s.history.Tail(r.Context(), last)
	if err != nil {
		examgen.Log().Errorf("Failed to read history: %v", err)
		http.Error(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "history", map[string]interface{}{
		"Block": examgen.RenderHistory(records, len(records)),
	})
}

func (s *Server) lastForm(r *http.Request) FormValues {
	session, _ := s.store.Get(r, sessionName)
	if form, ok := session.Values["form"].(FormValues); ok {
		return form
	}
	return defaultForm()
}

func (s *Server) renderForm(w http.ResponseWriter, status int, form FormValues, errMsg string) {
	s.render(w, status, "form", map[string]interface{}{
		"Form":         form,
		"Error":        errMsg,
		"QTypes":       []string{string(examgen.QTypeMCQ), string(examgen.QTypeTF)},
		"Difficulties": []string{string(examgen.DifficultyEasy), string(examgen.DifficultyMedium), string(examgen.DifficultyHard)},
		"BloomLevels": []string{
			string(examgen.BloomRemember), string(examgen.BloomUnderstand), string(examgen.BloomApply),
			string(examgen.BloomAnalyze), string(examgen.BloomEvaluate), string(examgen.BloomCreate),
		},
	})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		examgen.Log().Errorf("Template error in %s: %v", name, err)
	}
}

// parseForm reads the form, clamping n to 1..20 and max_k to 4..20
func parseForm(r *http.Request) FormValues {
	form := defaultForm()
	form.Subject = strings.TrimSpace(r.FormValue("subject"))
	form.Topic = strings.TrimSpace(r.FormValue("topic"))
	if v := r.FormValue("qtype"); v != "" {
		form.QType = v
	}
	if v := r.FormValue("difficulty"); v != "" {
		form.Difficulty = v
	}
	if v := r.FormValue("bloom_level"); v != "" {
		form.BloomLevel = v
	}
	if n, err := strconv.Atoi(r.FormValue("n")); err == nil {
		form.N = clamp(n, 1, 20)
	}
	if k, err := strconv.Atoi(r.FormValue("max_k")); err == nil {
		form.MaxK = clamp(k, 4, 20)
	}
	form.UseCache = r.FormValue("use_cache") != ""
	return form
}

// Params converts the form to generation parameters
func (f FormValues) Params() examgen.GenerationParams {
	return examgen.GenerationParams{
		Subject:    f.Subject,
		Topic:      f.Topic,
		QType:      examgen.QType(f.QType),
		Difficulty: examgen.Difficulty(f.Difficulty),
		BloomLevel: examgen.BloomLevel(f.BloomLevel),
		N:          f.N,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
