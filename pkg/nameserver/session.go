package nameserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// handleConn runs one session. The first frame must be REGISTER_CLIENT or
// REGISTER_SS; anything else closes the connection. A storage server
// registration is a one-shot exchange; a client registration starts the
// request loop, one request per turn.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	clientIP := peerIP(conn)
	lc := logger.NewLogContext(clientIP).WithTrace(uuid.NewString())
	ctx = logger.WithContext(ctx, lc)

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	verb, args, err := protocol.ReadFrame(reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.DebugCtx(ctx, "session read error", logger.Err(err))
		}
		return
	}

	switch verb {
	case protocol.VerbRegisterSS:
		s.registerStorage(ctx, writer, args)
		_ = writer.Flush()
		return

	case protocol.VerbRegisterClient:
		username, ok := s.registerClient(ctx, writer, args, clientIP)
		if err := writer.Flush(); err != nil || !ok {
			return
		}
		lc.Username = username
		s.requestLoop(ctx, reader, writer, username)

	default:
		logger.WarnCtx(ctx, "session opened without registration", logger.Verb(verb))
		_ = protocol.WritePayload(writer,
			protocol.FormatError(protocol.CodeUnknownCommand, "session must start with registration"),
			protocol.EndMarker)
		_ = writer.Flush()
	}
}

// registerStorage handles REGISTER_SS;ip;port;file_csv.
func (s *Server) registerStorage(ctx context.Context, w io.Writer, args []string) {
	if len(args) < 2 || len(args) > 3 {
		_ = protocol.WritePayload(w,
			protocol.FormatError(protocol.CodeInvalidArgs, "REGISTER_SS expects ip, port, and a file list"),
			protocol.EndMarker)
		return
	}
	port, err := strconv.Atoi(args[1])
	if err != nil {
		_ = protocol.WritePayload(w,
			protocol.FormatError(protocol.CodeInvalidArgs, "bad port %q", args[1]),
			protocol.EndMarker)
		return
	}
	var files []string
	if len(args) == 3 && args[2] != "" {
		files = strings.Split(args[2], ",")
	}
	if _, err := s.catalog.RegisterStorageServer(args[0], port, files); err != nil {
		werr := mapError(err)
		_ = protocol.WritePayload(w, werr.Error(), protocol.EndMarker)
		return
	}
	_ = protocol.WritePayload(w, protocol.AckSSReg, protocol.EndMarker)
}

// registerClient handles REGISTER_CLIENT;name and returns the bound
// username.
func (s *Server) registerClient(ctx context.Context, w io.Writer, args []string, clientIP string) (string, bool) {
	if len(args) != 1 {
		_ = protocol.WritePayload(w,
			protocol.FormatError(protocol.CodeInvalidArgs, "REGISTER_CLIENT expects a username"),
			protocol.EndMarker)
		return "", false
	}
	created, err := s.catalog.RegisterUser(args[0], clientIP)
	if err != nil {
		werr := mapError(err)
		_ = protocol.WritePayload(w, werr.Error(), protocol.EndMarker)
		return "", false
	}
	logger.InfoCtx(ctx, "client registered", logger.Username(args[0]), "new", created)
	_ = protocol.WritePayload(w, protocol.AckClientReg, protocol.EndMarker)
	return args[0], true
}

// requestLoop serves requests until the peer disconnects or the server
// shuts down.
func (s *Server) requestLoop(ctx context.Context, reader *bufio.Reader, writer *bufio.Writer, username string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		verb, args, err := protocol.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.DebugCtx(ctx, "session read error", logger.Err(err))
			}
			logger.InfoCtx(ctx, "session closed")
			return
		}
		if verb == "" {
			continue
		}

		start := time.Now()
		reply := s.router.Dispatch(ctx, username, verb, args)
		logger.DebugCtx(ctx, "request handled",
			logger.Verb(verb), logger.DurationMs(logger.Duration(start)))

		if err := protocol.WritePayload(writer, reply, protocol.EndMarker); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			logger.DebugCtx(ctx, "session write error", logger.Err(err))
			return
		}
	}
}

// peerIP extracts the bare IP of the remote end.
func peerIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
