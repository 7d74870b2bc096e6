package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 是状态 HTTP 服务器
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer 创建状态服务器，remote 不为 nil 时挂载 /remote 遥控通道
func NewServer(addr string, st *StateTracker, hub *Hub, remote http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(st, hub, remote, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

// NewRouter 注册所有路由
func NewRouter(st *StateTracker, hub *Hub, remote http.Handler, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st.Snapshot()); err != nil {
			logger.Warn("写入状态响应失败", "error", err)
		}
	}).Methods("GET")
	if hub != nil {
		router.HandleFunc("/ws", hub.ServeWs).Methods("GET")
	}
	if remote != nil {
		router.Handle("/remote", remote).Methods("GET")
	}
	return router
}

// Start 在后台启动服务器
func (s *Server) Start() {
	go func() {
		s.logger.Info("状态服务器启动", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("状态服务器启动失败", "error", err)
		}
	}()
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
