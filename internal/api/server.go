package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"digital_rf/pkg/logger"
)

// Server 是状态 HTTP 服务。
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer 创建监听 addr 的状态服务，addr 为空时使用 ":8080"。
func NewServer(addr string, h *Handler, log *logger.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           SetupRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.WithComponent("api").WithField("address", addr),
	}
}

// Run 启动服务并阻塞，直到 ctx 被取消后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("状态服务已启动")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("状态服务已关闭")
	return nil
}
