package storage

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/scribefs/scribefs/internal/logger"
)

// ServerConfig holds configuration for the storage server listener.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on, e.g. ":9001".
	ListenAddr string

	// Store is the file store the server operates on.
	Store *Store
}

// Server accepts client and name server connections and speaks the SS
// side of the wire protocol. One goroutine per connection; a single
// process-wide mutex serializes every disk mutation (commit, undo,
// delete, checkpoint, revert) so the .bak sibling is never raced.
type Server struct {
	config        ServerConfig
	store         *Store
	listener      net.Listener
	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}

	commitMu sync.Mutex
}

// NewServer creates a storage server around an opened store.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		config:        cfg,
		store:         cfg.Store,
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
	}
}

// Serve binds the listener and accepts connections until the context is
// cancelled or Stop is called. WaitReady unblocks once the listener is
// bound.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.ListenAddr, err)
	}
	s.listener = listener
	close(s.listenerReady)

	logger.Info("storage server started",
		"address", listener.Addr().String(), "root", s.store.Root())

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

// WaitReady returns a channel closed once the listener is bound. Callers
// should select on it with a timeout to detect startup failures.
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

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
	s.wg.Wait()
}
