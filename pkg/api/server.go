package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"netmon/pkg/config"
	"netmon/pkg/monitor"
)

// Server exposes read-only JSON snapshots of the monitor's state:
// GET /records, GET /records/{key}, GET /profiles and GET /stats. It is a
// collaborator consuming store snapshots, not a control surface.
type Server struct {
	config  *config.InspectorConfig
	monitor *monitor.Monitor
	server  *fasthttp.Server
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewServer creates an inspection server instance
func NewServer(cfg *config.InspectorConfig, m *monitor.Monitor, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Server{
		config:  cfg,
		monitor: m,
		logger:  logger,
	}

	s.server = &fasthttp.Server{
		Handler: s.handle,
		ErrorHandler: func(ctx *fasthttp.RequestCtx, err error) {
			logger.Error("Inspector error",
				zap.Error(err),
				zap.String("path", string(ctx.Path())))
		},
	}

	return s, nil
}

// Start runs the server until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("inspector is already running")
	}
	s.running = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("Starting inspector", zap.String("addr", addr))

	return s.server.ListenAndServe(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.logger.Info("Stopping inspector")
	return s.server.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	path := string(ctx.Path())
	switch {
	case path == "/records":
		s.handleRecords(ctx)
	case strings.HasPrefix(path, "/records/"):
		s.handleRecord(ctx, strings.TrimPrefix(path, "/records/"))
	case path == "/profiles":
		s.handleProfiles(ctx)
	case path == "/stats":
		s.handleStats(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

// recordView is the JSON shape of a record in inspector responses.
type recordView struct {
	Key          string  `json:"key"`
	Method       string  `json:"method"`
	URL          string  `json:"url"`
	StartedAt    string  `json:"startedAt"`
	Conclusion   string  `json:"conclusion"`
	TimeSpent    float64 `json:"timeSpent,omitempty"`
	RequestSize  int64   `json:"requestSize"`
	ResponseSize int64   `json:"responseSize"`
}

func viewOf(record *monitor.Record) recordView {
	view := recordView{
		Key:          record.Key,
		StartedAt:    record.StartTimestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Conclusion:   "in-flight",
		RequestSize:  record.RequestSize,
		ResponseSize: record.ResponseSize,
	}

	if record.Request != nil {
		view.Method = record.Request.Method
		view.URL = record.Request.URL
	}

	if record.Conclusion != nil {
		view.Conclusion = record.Conclusion.DisplayRepresentation()
	}

	if spent, ok := record.TimeSpent(); ok {
		view.TimeSpent = spent.Seconds()
	}

	return view
}

func (s *Server) handleRecords(ctx *fasthttp.RequestCtx) {
	records := s.monitor.Records()
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, viewOf(record))
	}
	s.writeJSON(ctx, views)
}

func (s *Server) handleRecord(ctx *fasthttp.RequestCtx, key string) {
	for _, record := range s.monitor.Records() {
		if record.Key == key {
			s.writeJSON(ctx, viewOf(record))
			return
		}
	}
	ctx.Error("record not found", fasthttp.StatusNotFound)
}

func (s *Server) handleProfiles(ctx *fasthttp.RequestCtx) {
	type responseView struct {
		Identifier    string `json:"identifier"`
		StatusCode    int    `json:"statusCode"`
		Repeatability string `json:"repeatability"`
		Uses          uint   `json:"uses"`
	}
	type profileView struct {
		Pattern   string         `json:"pattern"`
		Method    string         `json:"method"`
		Priority  uint           `json:"priority"`
		Responses []responseView `json:"responses"`
	}

	profiles := s.monitor.Profiles()
	views := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		view := profileView{
			Pattern:  p.Request.Pattern.String(),
			Method:   p.Request.Method,
			Priority: p.Priority,
		}
		for _, response := range p.Responses {
			view.Responses = append(view.Responses, responseView{
				Identifier:    response.Identifier,
				StatusCode:    response.StatusCode,
				Repeatability: response.Repeatability.String(),
				Uses:          s.monitor.UsageCount(response.Identifier),
			})
		}
		views = append(views, view)
	}
	s.writeJSON(ctx, views)
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	records := s.monitor.Records()

	inFlight := 0
	for _, record := range records {
		if record.Conclusion == nil {
			inFlight++
		}
	}

	s.writeJSON(ctx, map[string]interface{}{
		"records":           len(records),
		"inFlight":          inFlight,
		"monitoring":        s.monitor.IsMonitoring(),
		"profiles":          len(s.monitor.Profiles()),
		"totalRequestSize":  s.monitor.TotalRequestSize(),
		"totalResponseSize": s.monitor.TotalResponseSize(),
	})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		ctx.Error("failed to encode response", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
