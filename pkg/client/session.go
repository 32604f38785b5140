// Package client implements the interactive session driver: a persistent
// connection to the name server plus the transient storage server
// helpers used when the name server replies with a redirect.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// Session is a registered client session on the name server. Not safe
// for concurrent use: the protocol is strictly one request per turn.
type Session struct {
	conn     net.Conn
	reader   *bufio.Reader
	username string
}

// Connect dials the name server and registers the username. The returned
// session owns the connection.
func Connect(ctx context.Context, addr, username string) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing name server %s: %w", addr, err)
	}

	s := &Session{conn: conn, reader: bufio.NewReader(conn), username: username}
	reply, err := s.Send(protocol.VerbRegisterClient, username)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !strings.HasPrefix(reply, protocol.AckClientReg) {
		conn.Close()
		return nil, fmt.Errorf("registration refused: %s", reply)
	}
	logger.Debug("session registered", logger.Username(username), "nameserver", addr)
	return s, nil
}

// Username returns the registered username.
func (s *Session) Username() string {
	return s.username
}

// Close terminates the session.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Send writes one framed request and reads the reply up to the end
// marker. Structured error replies come back as *protocol.WireError.
func (s *Session) Send(verb string, args ...string) (string, error) {
	if err := protocol.WriteFrame(s.conn, verb, args...); err != nil {
		return "", fmt.Errorf("sending %s: %w", verb, err)
	}
	payload, err := protocol.ReadUntilMarker(s.reader, protocol.EndMarker)
	if err != nil {
		return "", fmt.Errorf("reading %s reply: %w", verb, err)
	}
	if werr := protocol.ParseWireError(payload); werr != nil {
		return "", werr
	}
	return payload, nil
}

// Redirect is a parsed REDIRECT_* reply.
type Redirect struct {
	Kind     string // RedirectRead, RedirectWrite, or RedirectStream
	Addr     string // storage server host:port
	Filename string
	Sentence int // write redirects only
}

// ParseRedirect parses a reply payload into a Redirect. Returns false
// when the payload is not a redirect.
func ParseRedirect(payload string) (Redirect, bool) {
	verb, args := protocol.ParseFrame(payload)
	switch verb {
	case protocol.RedirectRead, protocol.RedirectStream:
		if len(args) != 3 {
			return Redirect{}, false
		}
		return Redirect{
			Kind:     verb,
			Addr:     net.JoinHostPort(args[0], args[1]),
			Filename: args[2],
		}, true
	case protocol.RedirectWrite:
		if len(args) != 4 {
			return Redirect{}, false
		}
		sentence, err := strconv.Atoi(args[3])
		if err != nil {
			return Redirect{}, false
		}
		return Redirect{
			Kind:     verb,
			Addr:     net.JoinHostPort(args[0], args[1]),
			Filename: args[2],
			Sentence: sentence,
		}, true
	}
	return Redirect{}, false
}

// redirectFor issues a data-plane verb and requires a redirect of the
// expected kind in return.
func (s *Session) redirectFor(verb, kind string, args ...string) (Redirect, error) {
	payload, err := s.Send(verb, args...)
	if err != nil {
		return Redirect{}, err
	}
	redirect, ok := ParseRedirect(payload)
	if !ok || redirect.Kind != kind {
		return Redirect{}, fmt.Errorf("expected %s redirect, got %q", kind, payload)
	}
	return redirect, nil
}
