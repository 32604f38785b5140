package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/scribefs/scribefs/pkg/protocol"
)

// WordEdit is one word replacement sent during a write session.
type WordEdit struct {
	WordIdx int
	Content string
}

// Read asks the name server for a read redirect and fetches the file
// bytes from the storage server.
func (s *Session) Read(ctx context.Context, filename string) (string, error) {
	redirect, err := s.redirectFor(protocol.VerbRead, protocol.RedirectRead, filename)
	if err != nil {
		return "", err
	}
	return fetch(ctx, redirect.Addr, protocol.SSVerbRead, redirect.Filename)
}

// Write locks a sentence on the owning storage server, sends the edits,
// commits, and refreshes the catalog's word/char counts through the name
// server session.
func (s *Session) Write(ctx context.Context, filename string, sentence int, edits []WordEdit) error {
	redirect, err := s.redirectFor(protocol.VerbWrite, protocol.RedirectWrite,
		filename, strconv.Itoa(sentence))
	if err != nil {
		return err
	}

	ws, err := OpenWrite(ctx, redirect)
	if err != nil {
		return err
	}
	defer ws.Close()

	for _, e := range edits {
		if err := ws.Send(e.WordIdx, e.Content); err != nil {
			return err
		}
	}
	if err := ws.Commit(); err != nil {
		return err
	}

	// The commit bypassed the name server; refresh the counts.
	if _, err := s.Send(protocol.VerbUpdateMeta, filename); err != nil {
		return fmt.Errorf("refreshing metadata: %w", err)
	}
	return nil
}

// Stream fetches the file via a stream redirect and emits its
// whitespace-separated tokens to w with a fixed delay between tokens.
func (s *Session) Stream(ctx context.Context, filename string, w io.Writer, delay time.Duration) error {
	redirect, err := s.redirectFor(protocol.VerbStream, protocol.RedirectStream, filename)
	if err != nil {
		return err
	}
	content, err := fetch(ctx, redirect.Addr, protocol.SSVerbStream, redirect.Filename)
	if err != nil {
		return err
	}

	for i, token := range strings.Fields(content) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, token); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// fetch opens a transient storage server connection, issues one read
// verb, and returns the payload.
func fetch(ctx context.Context, addr, verb, filename string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dialing storage server %s: %w", addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, verb, filename); err != nil {
		return "", err
	}
	payload, err := protocol.ReadUntilMarker(bufio.NewReader(conn), protocol.SSEndMarker)
	if err != nil {
		return "", err
	}
	if msg, ok := strings.CutPrefix(payload, protocol.ErrorPrefix+protocol.FieldSep); ok {
		return "", fmt.Errorf("storage server error: %s", msg)
	}
	return payload, nil
}

// WriteSession is an open sentence lock on a storage server connection.
// The protocol is strictly sequential: every Send awaits its ACK before
// the next may go out.
type WriteSession struct {
	conn   net.Conn
	reader *bufio.Reader
}

// OpenWrite dials the storage server from a write redirect and locks the
// sentence.
func OpenWrite(ctx context.Context, redirect Redirect) (*WriteSession, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", redirect.Addr)
	if err != nil {
		return nil, fmt.Errorf("dialing storage server %s: %w", redirect.Addr, err)
	}

	ws := &WriteSession{conn: conn, reader: bufio.NewReader(conn)}
	err = protocol.WriteFrame(conn, protocol.SSVerbLockSentence,
		redirect.Filename, strconv.Itoa(redirect.Sentence))
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ws.expectLine(protocol.AckLock); err != nil {
		conn.Close()
		return nil, err
	}
	return ws, nil
}

// Send buffers one word edit on the server.
func (ws *WriteSession) Send(wordIdx int, content string) error {
	err := protocol.WriteFrame(ws.conn, protocol.SSVerbWriteData,
		strconv.Itoa(wordIdx), content)
	if err != nil {
		return err
	}
	return ws.expectLine(protocol.AckData)
}

// Commit applies the buffered edits and ends the write session.
func (ws *WriteSession) Commit() error {
	if err := protocol.WriteFrame(ws.conn, protocol.SSVerbCommitWrite); err != nil {
		return err
	}
	payload, err := protocol.ReadUntilMarker(ws.reader, protocol.SSEndMarker)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(payload, protocol.AckCommit) {
		return fmt.Errorf("commit failed: %s", payload)
	}
	return nil
}

// Close drops the connection. Closing before Commit discards all
// buffered edits on the server.
func (ws *WriteSession) Close() error {
	return ws.conn.Close()
}

// expectLine reads one bare reply line and checks the expected token.
func (ws *WriteSession) expectLine(token string) error {
	line, err := ws.reader.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line != token {
		return fmt.Errorf("expected %s, got %q", token, line)
	}
	return nil
}
