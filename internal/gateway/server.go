package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/tools"
	"github.com/MEKXH/warden/internal/version"
	"github.com/MEKXH/warden/internal/wire"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 20

// Deps are the executors the gateway fronts.
type Deps struct {
	Files    *executor.Files
	Commands *executor.Commands
	Tools    *tools.Registry
	// Metrics is optional; without it /v1/metrics reports an empty snapshot.
	Metrics *metrics.RuntimeMetrics
}

type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	httpServer *http.Server
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18790
	}

	cfg.Host = host
	cfg.Port = port
	s := &Server{
		cfg:  cfg,
		deps: deps,
	}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           NewHandler(cfg.Token, deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown is safe to call before or concurrently with Start; a server shut
// down first never begins listening.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// badRequest marks errors that are the caller's fault at the transport level.
type badRequest string

func (b badRequest) Error() string { return string(b) }

type operation func(ctx context.Context, r *http.Request) (map[string]any, error)

func NewHandler(token string, deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})

	h := &handlers{deps: deps}
	routes := []struct {
		method string
		path   string
		op     operation
	}{
		{http.MethodPost, "/v1/files/read", h.readFile},
		{http.MethodPost, "/v1/files/write", h.writeFile},
		{http.MethodPost, "/v1/files/list", h.listDirectory},
		{http.MethodPost, "/v1/files/exists", h.fileExists},
		{http.MethodPost, "/v1/files/stat", h.fileInfo},
		{http.MethodPost, "/v1/commands/execute", h.executeCommand},
		{http.MethodGet, "/v1/system/cwd", h.workingDirectory},
		{http.MethodPost, "/v1/system/env", h.environmentVariable},
		{http.MethodGet, "/v1/tools", h.listTools},
		{http.MethodPost, "/v1/tools/invoke", h.invokeTool},
		{http.MethodGet, "/v1/metrics", h.runtimeMetrics},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.path, serve(token, rt.method, rt.op))
	}
	return mux
}

func serve(token, method string, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != method {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}

		ctx := audit.WithRequest(r.Context(), audit.RequestMeta{
			RequestID: requestID,
			Caller:    r.RemoteAddr,
			Transport: "http",
		})
		payload, err := op(ctx, r)

		var bad badRequest
		if errors.As(err, &bad) {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", bad.Error())
			return
		}
		writeResult(w, requestID, payload, err)
	}
}

// writeResult renders the uniform {success, ..., error} shape. Operation
// failures are not transport faults and keep a 200 status.
func writeResult(w http.ResponseWriter, requestID string, payload map[string]any, err error) {
	body := map[string]any{}
	for k, v := range payload {
		body[k] = v
	}
	body["request_id"] = requestID
	st := wire.StatusOf(err)
	if _, ok := body["success"]; !ok || err != nil {
		body["success"] = st.Success
	}
	body["error"] = st.Error
	if st.ErrorKind != "" {
		body["error_kind"] = st.ErrorKind
	}
	if st.Reason != "" {
		body["reason"] = st.Reason
	}
	writeJSON(w, http.StatusOK, body)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json request")
	}
	return nil
}

type handlers struct {
	deps Deps
}

type pathRequest struct {
	Path string `json:"path"`
}

func (h *handlers) decodePath(r *http.Request) (string, error) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Path) == "" {
		return "", badRequest("path is required")
	}
	return req.Path, nil
}

func (h *handlers) readFile(ctx context.Context, r *http.Request) (map[string]any, error) {
	path, err := h.decodePath(r)
	if err != nil {
		return nil, err
	}
	data, err := h.deps.Files.Read(ctx, path)
	if err != nil {
		return map[string]any{"content": ""}, err
	}
	content, encoding := wire.EncodeContent(data)
	return map[string]any{"content": content, "encoding": encoding}, nil
}

func (h *handlers) writeFile(ctx context.Context, r *http.Request) (map[string]any, error) {
	var req struct {
		Path     string `json:"path"`
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Path) == "" {
		return nil, badRequest("path is required")
	}

	content, err := wire.DecodeContent(req.Content, req.Encoding)
	if err != nil {
		return nil, badRequest(err.Error())
	}

	return nil, h.deps.Files.Write(ctx, req.Path, content)
}

func (h *handlers) listDirectory(ctx context.Context, r *http.Request) (map[string]any, error) {
	path, err := h.decodePath(r)
	if err != nil {
		return nil, err
	}
	names, err := h.deps.Files.List(ctx, path)
	if names == nil {
		names = []string{}
	}
	return map[string]any{"entries": names}, err
}

func (h *handlers) fileExists(ctx context.Context, r *http.Request) (map[string]any, error) {
	path, err := h.decodePath(r)
	if err != nil {
		return nil, err
	}
	ok, err := h.deps.Files.Exists(ctx, path)
	return map[string]any{"exists": ok}, err
}

func (h *handlers) fileInfo(ctx context.Context, r *http.Request) (map[string]any, error) {
	path, err := h.decodePath(r)
	if err != nil {
		return nil, err
	}
	info, err := h.deps.Files.Stat(ctx, path)
	return map[string]any{
		"size":         info.Size,
		"is_directory": info.IsDirectory,
		"is_file":      info.IsFile,
		"read_only":    info.ReadOnly,
	}, err
}

func (h *handlers) executeCommand(ctx context.Context, r *http.Request) (map[string]any, error) {
	var req struct {
		Command        string   `json:"command"`
		Args           []string `json:"args"`
		TimeoutSeconds int      `json:"timeout_seconds"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	line := wire.JoinCommand(req.Command, req.Args)

	res, err := h.deps.Commands.ExecuteWithTimeout(ctx, line, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		return map[string]any{"stdout": "", "stderr": "", "exit_code": -1}, err
	}
	return map[string]any{
		// success mirrors the exit status, as the gRPC surface does
		"success":   res.Succeeded,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
		"truncated": res.Truncated,
		"duration":  res.Duration.String(),
	}, nil
}

func (h *handlers) workingDirectory(ctx context.Context, r *http.Request) (map[string]any, error) {
	path, err := h.deps.Commands.WorkingDirectory()
	return map[string]any{"path": path}, err
}

func (h *handlers) environmentVariable(ctx context.Context, r *http.Request) (map[string]any, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, badRequest("name is required")
	}
	value, found := h.deps.Commands.Environment(req.Name)
	return map[string]any{"value": value, "found": found}, nil
}

func (h *handlers) runtimeMetrics(ctx context.Context, r *http.Request) (map[string]any, error) {
	return map[string]any{"metrics": h.deps.Metrics.Snapshot()}, nil
}

func (h *handlers) listTools(ctx context.Context, r *http.Request) (map[string]any, error) {
	if h.deps.Tools == nil {
		return map[string]any{"tools": []any{}}, nil
	}
	infos, err := h.deps.Tools.Infos(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]map[string]string, 0, len(infos))
	for _, info := range infos {
		list = append(list, map[string]string{"name": info.Name, "description": info.Desc})
	}
	return map[string]any{"tools": list}, nil
}

func (h *handlers) invokeTool(ctx context.Context, r *http.Request) (map[string]any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, badRequest("name is required")
	}
	if h.deps.Tools == nil {
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, req.Name)
	}
	args := string(req.Arguments)
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	out, err := h.deps.Tools.Invoke(ctx, req.Name, args)
	if err != nil {
		return nil, err
	}
	if json.Valid([]byte(out)) {
		return map[string]any{"result": json.RawMessage(out)}, nil
	}
	return map[string]any{"result": out}, nil
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestIDOf(v))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["request_id"].(string); ok {
			return id
		}
	}
	return ""
}
