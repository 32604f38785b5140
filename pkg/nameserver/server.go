// Package nameserver implements the name server: the TCP session layer,
// the verb router, and the mediated transaction helper that keeps the
// catalog and the storage servers mutually consistent.
package nameserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/catalog"
)

// ServerConfig holds configuration for the name server listener.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on, e.g. ":9000".
	ListenAddr string

	// Catalog is the metadata store.
	Catalog *catalog.Service

	// Transactor runs mediated storage commands. Nil selects the
	// production TCP transactor.
	Transactor Transactor

	// Executor runs EXEC payloads. Nil disables EXEC.
	Executor Executor

	// Metrics is the optional metrics collector.
	Metrics Metrics
}

// Server accepts client sessions and storage server registrations.
type Server struct {
	config        ServerConfig
	catalog       *catalog.Service
	router        *Router
	metrics       Metrics
	listener      net.Listener
	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
}

// NewServer wires a name server around a catalog.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Transactor == nil {
		cfg.Transactor = &TCPTransactor{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Server{
		config:        cfg,
		catalog:       cfg.Catalog,
		router:        NewRouter(cfg.Catalog, cfg.Transactor, cfg.Executor, cfg.Metrics),
		metrics:       cfg.Metrics,
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
	}
}

// Serve binds the listener and accepts sessions until the context is
// cancelled or Stop is called. WaitReady unblocks once the listener is
// bound.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.ListenAddr, err)
	}
	s.listener = listener
	close(s.listenerReady)

	logger.Info("name server started", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				s.wg.Wait()
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// WaitReady returns a channel closed once the listener is bound.
func (s *Server) WaitReady() <-chan struct{} {
	return s.listenerReady
}

// Addr returns the bound listener address, or "" before Serve.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stop closes the listener and waits for in-flight sessions.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
	s.wg.Wait()
}
