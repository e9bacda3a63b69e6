package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Status /status 返回的运行快照
type Status struct {
	RunID       string          `json:"run_id"`
	SampleName  string          `json:"sample_name"`
	State       string          `json:"state"`
	Progress    float64         `json:"progress"`
	Points      int             `json:"points"`
	Instruments map[string]bool `json:"instruments"`
}

// StatusFunc 读取当前运行状态
type StatusFunc func() Status

// Server 指标与控制接口
type Server struct {
	mon    *Monitor
	status StatusFunc
	stop   func()
	log    *logrus.Logger

	srv    *http.Server
	access io.WriteCloser
}

// NewServer 创建 HTTP 服务, stop 在收到 POST /stop 时调用
func NewServer(addr string, mon *Monitor, status StatusFunc, stop func(), log *logrus.Logger) *Server {
	s := &Server{mon: mon, status: status, stop: stop, log: log}
	s.access = log.WriterLevel(logrus.DebugLevel)
	h := handlers.RecoveryHandler(handlers.RecoveryLogger(log))(s.Router())
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(s.access, h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router 注册全部路由
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.mon.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/stop", s.postStop).Methods(http.MethodPost)
	return r
}

// Start 后台启动监听
func (s *Server) Start() {
	go func() {
		s.log.Infof("监控服务启动: http://%s/metrics", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("监控服务启动失败: %v", err)
		}
	}()
}

// Shutdown 关闭监听
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	_ = s.access.Close()
	return err
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) postStop(w http.ResponseWriter, _ *http.Request) {
	s.log.Warn("收到 HTTP 停止请求")
	s.stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
