// Package server exposes a tts.Service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/tts"
)

// Synthesizer produces WAV bytes for a request.
type Synthesizer interface {
	SynthesizeWAV(ctx context.Context, req tts.Request) ([]byte, error)
}

// ModelInfo is reported by GET /info.
type ModelInfo struct {
	Encoder         string   `json:"encoder"`
	Attention       string   `json:"attention"`
	Languages       []string `json:"languages"`
	Speakers        []string `json:"speakers,omitempty"`
	MultiSpeaker    bool     `json:"multi_speaker"`
	MultiLanguage   bool     `json:"multi_language"`
	SampleRate      int      `json:"sample_rate"`
	MaxOutputLength int      `json:"max_output_length"`
}

// InfoFromConfig describes the model configured by cfg. Languages are the
// accepted dataset languages; use WithVocabulary to report the id order a
// checkpoint was trained with.
func InfoFromConfig(cfg config.Config) ModelInfo {
	return ModelInfo{
		Encoder:         cfg.Model.EncoderType,
		Attention:       cfg.Model.AttentionType,
		Languages:       cfg.Dataset.Languages,
		MultiSpeaker:    cfg.Model.MultiSpeaker,
		MultiLanguage:   cfg.Model.MultiLanguage,
		SampleRate:      cfg.Audio.SampleRate,
		MaxOutputLength: cfg.Model.MaxOutputLength,
	}
}

// WithVocabulary returns a copy of i listing speakers and languages in id
// order. A nil languages list keeps the configured one.
func (i ModelInfo) WithVocabulary(speakers, languages []string) ModelInfo {
	i.Speakers = speakers
	if languages != nil {
		i.Languages = languages
	}

	return i
}

type options struct {
	maxTextBytes   int
	maxChunkChars  int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		maxChunkChars:  200,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /synthesize.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxChunkChars sets the sentence chunk size used for long requests.
func WithMaxChunkChars(n int) Option {
	return func(o *options) { o.maxChunkChars = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls. 0
// disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type handler struct {
	synth Synthesizer
	info  ModelInfo
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /info and
// POST /synthesize.
func NewHandler(synth Synthesizer, info ModelInfo, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		info:  info,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/info", h.handleInfo)
	mux.HandleFunc("/synthesize", h.handleSynthesize)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Speaker  int    `json:"speaker"`
	Language int    `json:"language"`
}

func (h *handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))

		return
	}

	if req.Speaker < 0 || req.Language < 0 {
		writeError(w, http.StatusBadRequest, "speaker and language ids must be non-negative")
		return
	}

	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	wav, err := h.synth.SynthesizeWAV(ctx, tts.Request{
		Text:          req.Text,
		Speaker:       req.Speaker,
		Language:      req.Language,
		MaxChunkChars: h.opts.maxChunkChars,
	})
	durationMS := time.Since(start).Milliseconds()

	attrs := []any{
		slog.Int("speaker", req.Speaker),
		slog.Int("language", req.Language),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
			writeError(w, http.StatusGatewayTimeout, "synthesis timed out")

			return
		}

		h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete", append(attrs, slog.Int("wav_bytes", len(wav)))...)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	synth           Synthesizer
	info            ModelInfo
	shutdownTimeout time.Duration
}

func New(cfg config.Config, synth Synthesizer) *Server {
	return &Server{
		cfg:             cfg,
		synth:           synth,
		info:            InfoFromConfig(cfg),
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithInfo overrides what GET /info reports.
func (s *Server) WithInfo(info ModelInfo) *Server {
	s.info = info
	return s
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.synth == nil {
		return errors.New("server: no synthesizer configured")
	}

	h := NewHandler(s.synth, s.info,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("http server listening", "addr", s.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// CheckHTTP checks the /health endpoint of a running server.
func CheckHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
