package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// writeSession is the per-connection write state machine. A connection is
// IDLE until SS_LOCK_SENTENCE succeeds; WRITE_DATA frames accumulate
// edits while LOCKED; COMMIT_WRITE applies them and returns to IDLE. A
// disconnect in any state discards the buffer with no disk effect.
type writeSession struct {
	locked   bool
	filename string
	sentence int
	edits    []Edit
}

func (ws *writeSession) reset() {
	*ws = writeSession{}
}

// handleConn runs the request loop for one connection. Lock and data
// acknowledgements are single lines; every other reply ends with the SS
// end marker.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	var ws writeSession

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
				logger.Debug("storage session read error", logger.ClientIP(peer), logger.Err(err))
			}
			if ws.locked {
				logger.Info("write session dropped before commit",
					logger.ClientIP(peer), logger.Filename(ws.filename))
			}
			return
		}
		if verb == "" {
			continue
		}

		logger.Debug("storage request", logger.ClientIP(peer), logger.Verb(verb))

		if !s.dispatch(writer, &ws, verb, args) {
			return
		}
		if err := writer.Flush(); err != nil {
			logger.Debug("storage session write error", logger.ClientIP(peer), logger.Err(err))
			return
		}
	}
}

// dispatch handles one frame. It returns false when the session must
// close (protocol desynchronization).
func (s *Server) dispatch(w io.Writer, ws *writeSession, verb string, args []string) bool {
	switch verb {
	case protocol.SSVerbCreate:
		if len(args) != 1 {
			return s.replyError(w, "SS_CREATE expects a filename")
		}
		s.commitMu.Lock()
		err := s.store.Create(args[0])
		s.commitMu.Unlock()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyAck(w, protocol.AckCreate)

	case protocol.SSVerbRead, protocol.SSVerbStream:
		if len(args) != 1 {
			return s.replyError(w, verb+" expects a filename")
		}
		data, err := s.store.Read(args[0])
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyPayload(w, string(data))

	case protocol.SSVerbDelete:
		if len(args) != 1 {
			return s.replyError(w, "SS_DELETE expects a filename")
		}
		s.commitMu.Lock()
		err := s.store.Delete(args[0])
		s.commitMu.Unlock()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyAck(w, protocol.AckDelete)

	case protocol.SSVerbLockSentence:
		if ws.locked {
			return s.replyLine(w, "ERROR;a sentence is already locked on this session")
		}
		if len(args) != 2 {
			return s.replyLine(w, "ERROR;SS_LOCK_SENTENCE expects filename and sentence")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return s.replyLine(w, "ERROR;bad sentence number "+args[1])
		}
		data, err := s.store.Read(args[0])
		if err != nil {
			return s.replyLine(w, "ERROR;"+err.Error())
		}
		if _, err := NthSentence(string(data), n); err != nil {
			return s.replyLine(w, "ERROR;"+err.Error())
		}
		ws.locked = true
		ws.filename = args[0]
		ws.sentence = n
		ws.edits = nil
		logger.Info("sentence locked", logger.Filename(ws.filename), logger.Sentence(n))
		return s.replyLine(w, protocol.AckLock)

	case protocol.SSVerbWriteData:
		if !ws.locked {
			return s.replyLine(w, "ERROR;WRITE_DATA without a locked sentence")
		}
		if len(args) < 2 {
			return s.replyLine(w, "ERROR;WRITE_DATA expects index and content")
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return s.replyLine(w, "ERROR;bad word index "+args[0])
		}
		// Content is everything after the index, delimiters included.
		ws.edits = append(ws.edits, Edit{WordIdx: idx, Content: strings.Join(args[1:], protocol.FieldSep)})
		return s.replyLine(w, protocol.AckData)

	case protocol.SSVerbCommitWrite:
		if !ws.locked {
			return s.replyError(w, "COMMIT_WRITE without a locked sentence")
		}
		s.commitMu.Lock()
		err := s.store.Commit(ws.filename, ws.sentence, ws.edits)
		s.commitMu.Unlock()
		name := ws.filename
		ws.reset()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		logger.Info("sentence committed", logger.Filename(name))
		return s.replyAck(w, protocol.AckCommit)

	case protocol.SSVerbUndo:
		if len(args) != 1 {
			return s.replyError(w, "SS_UNDO expects a filename")
		}
		s.commitMu.Lock()
		err := s.store.Undo(args[0])
		s.commitMu.Unlock()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyAck(w, protocol.AckUndo)

	case protocol.SSVerbCheckpoint:
		if len(args) != 2 {
			return s.replyError(w, "SS_CHECKPOINT expects filename and tag")
		}
		s.commitMu.Lock()
		err := s.store.Checkpoint(args[0], args[1])
		s.commitMu.Unlock()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyAck(w, protocol.AckCheckpoint)

	case protocol.SSVerbRevert:
		if len(args) != 2 {
			return s.replyError(w, "SS_REVERT expects filename and tag")
		}
		s.commitMu.Lock()
		err := s.store.Revert(args[0], args[1])
		s.commitMu.Unlock()
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyAck(w, protocol.AckRevert)

	case protocol.SSVerbViewCheckpoint:
		if len(args) != 2 {
			return s.replyError(w, "SS_VIEWCHECKPOINT expects filename and tag")
		}
		data, err := s.store.ReadCheckpoint(args[0], args[1])
		if err != nil {
			return s.replyError(w, err.Error())
		}
		return s.replyPayload(w, string(data))

	default:
		return s.replyError(w, "unknown command "+verb)
	}
}

// replyAck writes an acknowledgement token followed by the end marker.
func (s *Server) replyAck(w io.Writer, token string) bool {
	return protocol.WritePayload(w, token, protocol.SSEndMarker) == nil
}

// replyPayload writes free text followed by the end marker.
func (s *Server) replyPayload(w io.Writer, payload string) bool {
	return protocol.WritePayload(w, payload, protocol.SSEndMarker) == nil
}

// replyError writes an ERROR line followed by the end marker.
func (s *Server) replyError(w io.Writer, msg string) bool {
	return protocol.WritePayload(w, protocol.ErrorPrefix+protocol.FieldSep+msg, protocol.SSEndMarker) == nil
}

// replyLine writes a bare line with no end marker, used inside an open
// write session (ACK_LOCK, ACK_DATA and their error counterparts).
func (s *Server) replyLine(w io.Writer, line string) bool {
	_, err := io.WriteString(w, line+"\n")
	return err == nil
}
