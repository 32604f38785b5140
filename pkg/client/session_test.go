package client

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/nameserver"
	"github.com/scribefs/scribefs/pkg/protocol"
	"github.com/scribefs/scribefs/pkg/storage"
)

// startStack runs a name server and a storage server on loopback and
// returns the name server address.
func startStack(t *testing.T) string {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	ssSrv := storage.NewServer(storage.ServerConfig{ListenAddr: "127.0.0.1:0", Store: store})

	cat, err := catalog.NewService(catalog.Config{})
	require.NoError(t, err)
	nsSrv := nameserver.NewServer(nameserver.ServerConfig{ListenAddr: "127.0.0.1:0", Catalog: cat})

	ctx, cancel := context.WithCancel(context.Background())
	ssDone := make(chan error, 1)
	nsDone := make(chan error, 1)
	go func() { ssDone <- ssSrv.Serve(ctx) }()
	go func() { nsDone <- nsSrv.Serve(ctx) }()
	for _, ready := range []<-chan struct{}{ssSrv.WaitReady(), nsSrv.WaitReady()} {
		select {
		case <-ready:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not become ready")
		}
	}
	t.Cleanup(func() {
		cancel()
		nsSrv.Stop()
		ssSrv.Stop()
		<-ssDone
		<-nsDone
	})

	host, portStr, err := net.SplitHostPort(ssSrv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, storage.Register(ctx, nsSrv.Addr(), host, port, store))

	return nsSrv.Addr()
}

func TestConnectAndRegister(t *testing.T) {
	nsAddr := startStack(t)

	s, err := Connect(context.Background(), nsAddr, "alice")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "alice", s.Username())

	reply, err := s.Send(protocol.VerbListUsers)
	require.NoError(t, err)
	assert.Equal(t, "alice", reply)
}

func TestWriteReadUndoRoundTrip(t *testing.T) {
	nsAddr := startStack(t)
	ctx := context.Background()

	s, err := Connect(ctx, nsAddr, "alice")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(protocol.VerbCreate, "notes.txt")
	require.NoError(t, err)

	err = s.Write(ctx, "notes.txt", 0, []WordEdit{
		{WordIdx: 0, Content: "Hello"},
		{WordIdx: 1, Content: "world."},
	})
	require.NoError(t, err)

	content, err := s.Read(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", content)

	// The write helper's follow-up UPDATE_META refreshed the counts.
	info, err := s.Send(protocol.VerbInfo, "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, info, "Words: 2")
	assert.Contains(t, info, "Chars: 12")

	// Undo restores the pre-commit (empty) content.
	_, err = s.Send(protocol.VerbUndo, "notes.txt")
	require.NoError(t, err)
	content, err = s.Read(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestStreamEmitsTokens(t *testing.T) {
	nsAddr := startStack(t)
	ctx := context.Background()

	s, err := Connect(ctx, nsAddr, "alice")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(protocol.VerbCreate, "poem.txt")
	require.NoError(t, err)
	err = s.Write(ctx, "poem.txt", 0, []WordEdit{
		{WordIdx: 0, Content: "one"},
		{WordIdx: 1, Content: "two"},
		{WordIdx: 2, Content: "three."},
	})
	require.NoError(t, err)

	var b strings.Builder
	start := time.Now()
	require.NoError(t, s.Stream(ctx, "poem.txt", &b, 20*time.Millisecond))
	assert.Equal(t, "one two three.\n", b.String())
	// Two inter-token delays at minimum.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPermissionDeniedSurfacesWireError(t *testing.T) {
	nsAddr := startStack(t)
	ctx := context.Background()

	alice, err := Connect(ctx, nsAddr, "alice")
	require.NoError(t, err)
	defer alice.Close()
	bob, err := Connect(ctx, nsAddr, "bob")
	require.NoError(t, err)
	defer bob.Close()

	_, err = alice.Send(protocol.VerbCreate, "secret.txt")
	require.NoError(t, err)

	_, err = bob.Read(ctx, "secret.txt")
	var werr *protocol.WireError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, protocol.CodePermissionDenied, werr.Code)

	_, err = alice.Send(protocol.VerbAddAccess, "secret.txt", "bob", "R")
	require.NoError(t, err)

	content, err := bob.Read(ctx, "secret.txt")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestWriteSessionDiscardOnClose(t *testing.T) {
	nsAddr := startStack(t)
	ctx := context.Background()

	s, err := Connect(ctx, nsAddr, "alice")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(protocol.VerbCreate, "a.txt")
	require.NoError(t, err)

	redirect, err := s.redirectFor(protocol.VerbWrite, protocol.RedirectWrite, "a.txt", "0")
	require.NoError(t, err)
	ws, err := OpenWrite(ctx, redirect)
	require.NoError(t, err)
	require.NoError(t, ws.Send(0, "doomed"))
	require.NoError(t, ws.Close())

	content, err := s.Read(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestParseRedirect(t *testing.T) {
	r, ok := ParseRedirect("REDIRECT_READ;10.0.0.5;9001;a.txt")
	require.True(t, ok)
	assert.Equal(t, protocol.RedirectRead, r.Kind)
	assert.Equal(t, "10.0.0.5:9001", r.Addr)
	assert.Equal(t, "a.txt", r.Filename)

	r, ok = ParseRedirect("REDIRECT_WRITE;10.0.0.5;9001;a.txt;3")
	require.True(t, ok)
	assert.Equal(t, 3, r.Sentence)

	_, ok = ParseRedirect("File created.")
	assert.False(t, ok)
	_, ok = ParseRedirect("REDIRECT_WRITE;10.0.0.5;9001;a.txt;x")
	assert.False(t, ok)
}
