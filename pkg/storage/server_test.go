package storage

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribefs/scribefs/pkg/protocol"
)

// startTestServer runs a storage server on loopback and returns it with
// its bound address.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	srv := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", Store: st})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-srv.WaitReady():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		srv.Stop()
		<-done
	})
	return srv, srv.Addr()
}

func dialTest(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

// roundTrip sends one frame and reads the reply up to the end marker.
func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, verb string, args ...string) string {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(conn, verb, args...))
	reply, err := protocol.ReadUntilMarker(r, protocol.SSEndMarker)
	require.NoError(t, err)
	return reply
}

// readLine reads one bare reply line (ACK_LOCK / ACK_DATA path).
func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func TestServerCreateReadDelete(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	assert.Equal(t, protocol.AckCreate, roundTrip(t, conn, r, protocol.SSVerbCreate, "notes.txt"))

	// Exclusive create: the second attempt fails.
	reply := roundTrip(t, conn, r, protocol.SSVerbCreate, "notes.txt")
	assert.True(t, strings.HasPrefix(reply, protocol.ErrorPrefix))

	assert.Equal(t, "", roundTrip(t, conn, r, protocol.SSVerbRead, "notes.txt"))

	assert.Equal(t, protocol.AckDelete, roundTrip(t, conn, r, protocol.SSVerbDelete, "notes.txt"))
	reply = roundTrip(t, conn, r, protocol.SSVerbRead, "notes.txt")
	assert.True(t, strings.HasPrefix(reply, protocol.ErrorPrefix))
}

func TestServerWriteSession(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	require.Equal(t, protocol.AckCreate, roundTrip(t, conn, r, protocol.SSVerbCreate, "notes.txt"))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "notes.txt", "0"))
	require.Equal(t, protocol.AckLock, readLine(t, r))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "0", "Hello"))
	require.Equal(t, protocol.AckData, readLine(t, r))
	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "1", "world."))
	require.Equal(t, protocol.AckData, readLine(t, r))

	assert.Equal(t, protocol.AckCommit, roundTrip(t, conn, r, protocol.SSVerbCommitWrite))

	assert.Equal(t, "Hello world.", roundTrip(t, conn, r, protocol.SSVerbRead, "notes.txt"))

	// Undo restores the empty pre-commit file and consumes the backup.
	assert.Equal(t, protocol.AckUndo, roundTrip(t, conn, r, protocol.SSVerbUndo, "notes.txt"))
	assert.Equal(t, "", roundTrip(t, conn, r, protocol.SSVerbRead, "notes.txt"))
	reply := roundTrip(t, conn, r, protocol.SSVerbUndo, "notes.txt")
	assert.True(t, strings.HasPrefix(reply, protocol.ErrorPrefix))
}

func TestServerWriteDataWithoutLock(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "0", "x"))
	assert.True(t, strings.HasPrefix(readLine(t, r), protocol.ErrorPrefix))

	reply := roundTrip(t, conn, r, protocol.SSVerbCommitWrite)
	assert.True(t, strings.HasPrefix(reply, protocol.ErrorPrefix))
}

func TestServerLockRejectsBadSentence(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	require.Equal(t, protocol.AckCreate, roundTrip(t, conn, r, protocol.SSVerbCreate, "a.txt"))

	// Sentence 1 of an empty file is beyond the last sentence.
	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "a.txt", "1"))
	assert.True(t, strings.HasPrefix(readLine(t, r), protocol.ErrorPrefix))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "ghost.txt", "0"))
	assert.True(t, strings.HasPrefix(readLine(t, r), protocol.ErrorPrefix))
}

func TestServerDisconnectDiscardsBuffer(t *testing.T) {
	_, addr := startTestServer(t)

	conn, r := dialTest(t, addr)
	require.Equal(t, protocol.AckCreate, roundTrip(t, conn, r, protocol.SSVerbCreate, "a.txt"))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "a.txt", "0"))
	require.Equal(t, protocol.AckLock, readLine(t, r))
	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "0", "doomed"))
	require.Equal(t, protocol.AckData, readLine(t, r))

	// Drop the connection before COMMIT_WRITE: no disk change.
	require.NoError(t, conn.Close())

	conn2, r2 := dialTest(t, addr)
	assert.Equal(t, "", roundTrip(t, conn2, r2, protocol.SSVerbRead, "a.txt"))
}

func TestServerCheckpointFlow(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	require.Equal(t, protocol.AckCreate, roundTrip(t, conn, r, protocol.SSVerbCreate, "a.txt"))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "a.txt", "0"))
	require.Equal(t, protocol.AckLock, readLine(t, r))
	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "0", "v1."))
	require.Equal(t, protocol.AckData, readLine(t, r))
	require.Equal(t, protocol.AckCommit, roundTrip(t, conn, r, protocol.SSVerbCommitWrite))

	assert.Equal(t, protocol.AckCheckpoint, roundTrip(t, conn, r, protocol.SSVerbCheckpoint, "a.txt", "stable"))
	assert.Equal(t, "v1.", roundTrip(t, conn, r, protocol.SSVerbViewCheckpoint, "a.txt", "stable"))

	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbLockSentence, "a.txt", "0"))
	require.Equal(t, protocol.AckLock, readLine(t, r))
	require.NoError(t, protocol.WriteFrame(conn, protocol.SSVerbWriteData, "0", "v2."))
	require.Equal(t, protocol.AckData, readLine(t, r))
	require.Equal(t, protocol.AckCommit, roundTrip(t, conn, r, protocol.SSVerbCommitWrite))

	assert.Equal(t, protocol.AckRevert, roundTrip(t, conn, r, protocol.SSVerbRevert, "a.txt", "stable"))
	assert.Equal(t, "v1.", roundTrip(t, conn, r, protocol.SSVerbRead, "a.txt"))
}

func TestServerUnknownVerb(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dialTest(t, addr)

	reply := roundTrip(t, conn, r, "BOGUS")
	assert.True(t, strings.HasPrefix(reply, protocol.ErrorPrefix))
}
