package nameserver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// fakeSS is a scripted Transactor. Replies are keyed by verb; a missing
// key yields the verb's ACK-free payload "".
type fakeSS struct {
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeSS) Transact(_ context.Context, ep catalog.Endpoint, verb string, args ...string) (string, error) {
	f.calls = append(f.calls, strings.Join(append([]string{verb}, args...), ";"))
	if err, ok := f.errs[verb]; ok {
		return "", err
	}
	return f.replies[verb], nil
}

type upperExec struct{}

func (upperExec) Exec(_ context.Context, content string) (string, error) {
	return strings.ToUpper(content), nil
}

// newTestRouter builds a catalog with one user and one registered
// storage server, plus a router over the fake.
func newTestRouter(t *testing.T, ss *fakeSS) (*Router, *catalog.Service) {
	t.Helper()
	cat, err := catalog.NewService(catalog.Config{})
	require.NoError(t, err)
	_, err = cat.RegisterUser("alice", "127.0.0.1")
	require.NoError(t, err)
	_, err = cat.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)
	return NewRouter(cat, ss, upperExec{}, nil), cat
}

// wireCode extracts the error code of a dispatched reply, or 0.
func wireCode(reply string) int {
	if werr := protocol.ParseWireError(reply); werr != nil {
		return int(werr.Code)
	}
	return 0
}

func TestRouterCreate(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, cat := newTestRouter(t, ss)

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"notes.txt"})
	assert.Equal(t, "File 'notes.txt' created successfully.", reply)
	assert.Equal(t, []string{"SS_CREATE;notes.txt"}, ss.calls)

	fi, err := cat.Info("notes.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", fi.Owner)
	assert.Equal(t, "127.0.0.1:9001", fi.SS.String())

	// A second create finds the row and never reaches the storage server.
	reply = r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"notes.txt"})
	assert.Equal(t, 409, wireCode(reply))
	assert.Len(t, ss.calls, 1)
}

func TestRouterCreateNoStorage(t *testing.T) {
	cat, err := catalog.NewService(catalog.Config{})
	require.NoError(t, err)
	_, err = cat.RegisterUser("alice", "")
	require.NoError(t, err)
	r := NewRouter(cat, &fakeSS{}, nil, nil)

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})
	assert.Equal(t, 503, wireCode(reply))
}

func TestRouterCreateStorageFailureLeavesCatalogUntouched(t *testing.T) {
	ss := &fakeSS{errs: map[string]error{
		protocol.SSVerbCreate: &SSError{Message: "file already exists"},
	}}
	r, cat := newTestRouter(t, ss)

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})
	assert.Equal(t, 409, wireCode(reply))
	assert.Equal(t, 0, cat.Snapshot().Files)
}

func TestRouterCreateUnreachable(t *testing.T) {
	ss := &fakeSS{errs: map[string]error{
		protocol.SSVerbCreate: fmt.Errorf("%w: dial refused", ErrSSUnreachable),
	}}
	r, cat := newTestRouter(t, ss)

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})
	assert.Equal(t, 108, wireCode(reply))
	assert.Equal(t, 0, cat.Snapshot().Files)
}

func TestRouterDelete(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{
		protocol.SSVerbCreate: protocol.AckCreate,
		protocol.SSVerbDelete: protocol.AckDelete,
	}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)

	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	// Owner-only: bob cannot delete.
	reply := r.Dispatch(context.Background(), "bob", protocol.VerbDelete, []string{"a.txt"})
	assert.Equal(t, 401, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbDelete, []string{"a.txt"})
	assert.Equal(t, "File 'a.txt' deleted successfully.", reply)

	// Catalog row gone: a follow-up INFO misses.
	reply = r.Dispatch(context.Background(), "alice", protocol.VerbInfo, []string{"a.txt"})
	assert.Equal(t, 404, wireCode(reply))
}

func TestRouterRedirects(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbRead, []string{"a.txt"})
	assert.Equal(t, "REDIRECT_READ;127.0.0.1;9001;a.txt", reply)

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbStream, []string{"a.txt"})
	assert.Equal(t, "REDIRECT_STREAM;127.0.0.1;9001;a.txt", reply)

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbWrite, []string{"a.txt", "2"})
	assert.Equal(t, "REDIRECT_WRITE;127.0.0.1;9001;a.txt;2", reply)

	// No grant: bob is refused before any redirect.
	reply = r.Dispatch(context.Background(), "bob", protocol.VerbRead, []string{"a.txt"})
	assert.Equal(t, 403, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbWrite, []string{"a.txt", "x"})
	assert.Equal(t, 422, wireCode(reply))
}

func TestRouterReadGrantFlow(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"notes.txt"})))

	reply := r.Dispatch(context.Background(), "bob", protocol.VerbRead, []string{"notes.txt"})
	assert.Equal(t, 403, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbAddAccess, []string{"notes.txt", "bob", "R"})
	assert.Equal(t, "Granted R on 'notes.txt' to bob.", reply)

	reply = r.Dispatch(context.Background(), "bob", protocol.VerbRead, []string{"notes.txt"})
	assert.Equal(t, "REDIRECT_READ;127.0.0.1;9001;notes.txt", reply)

	// R does not grant W.
	reply = r.Dispatch(context.Background(), "bob", protocol.VerbWrite, []string{"notes.txt", "0"})
	assert.Equal(t, 403, wireCode(reply))
}

func TestRouterUpdateMeta(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{
		protocol.SSVerbCreate: protocol.AckCreate,
		protocol.SSVerbRead:   "Hello world.",
	}}
	r, cat := newTestRouter(t, ss)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbUpdateMeta, []string{"a.txt"})
	assert.Equal(t, "Metadata updated for 'a.txt': 2 words, 12 chars.", reply)

	fi, err := cat.Info("a.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, fi.WordCount)
	assert.Equal(t, 12, fi.CharCount)
}

func TestRouterExec(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{
		protocol.SSVerbCreate: protocol.AckCreate,
		protocol.SSVerbRead:   "echo hi",
	}}
	r, _ := newTestRouter(t, ss)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"run.txt"})))

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbExec, []string{"run.txt"})
	assert.Equal(t, "ECHO HI", reply)
}

func TestRouterExecDisabled(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	cat, err := catalog.NewService(catalog.Config{})
	require.NoError(t, err)
	_, err = cat.RegisterUser("alice", "")
	require.NoError(t, err)
	_, err = cat.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)
	r := NewRouter(cat, ss, nil, nil)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"run.txt"})))

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbExec, []string{"run.txt"})
	assert.Equal(t, 107, wireCode(reply))
}

func TestRouterAccessRequestFlow(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	reply := r.Dispatch(context.Background(), "bob", protocol.VerbRequestAccess, []string{"a.txt"})
	assert.Equal(t, 0, wireCode(reply))

	// Only the owner may inspect the queue.
	reply = r.Dispatch(context.Background(), "bob", protocol.VerbViewRequests, []string{"a.txt"})
	assert.Equal(t, 401, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbViewRequests, []string{"a.txt"})
	assert.Equal(t, "bob", reply)

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbApprove, []string{"a.txt", "bob"})
	assert.Equal(t, "Granted R on 'a.txt' to bob.", reply)

	reply = r.Dispatch(context.Background(), "bob", protocol.VerbRead, []string{"a.txt"})
	assert.True(t, strings.HasPrefix(reply, protocol.RedirectRead))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbViewRequests, []string{"a.txt"})
	assert.Equal(t, "(no pending requests)", reply)
}

func TestRouterAnnotations(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, _ := newTestRouter(t, ss)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	// The annotation text may contain the field delimiter.
	reply := r.Dispatch(context.Background(), "alice", protocol.VerbAnnotate, []string{"a.txt", "draft", " see notes"})
	assert.Equal(t, 0, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbShowAnnotation, []string{"a.txt"})
	assert.Equal(t, "draft; see notes", reply)
}

func TestRouterFolders(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, _ := newTestRouter(t, ss)

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCreateFolder, []string{"docs"})
	assert.Equal(t, "Folder 'docs' created.", reply)

	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"docs/a.txt"})))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbViewFolder, []string{"docs"})
	assert.Equal(t, "docs/a.txt", reply)

	// Creating inside a missing folder fails before any storage call.
	reply = r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"ghost/a.txt"})
	assert.Equal(t, 404, wireCode(reply))
}

func TestRouterView(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"mine.txt"})))

	// bob sees nothing by default, everything with the 'a' flag.
	reply := r.Dispatch(context.Background(), "bob", protocol.VerbView, nil)
	assert.Equal(t, "(no files)", reply)

	reply = r.Dispatch(context.Background(), "bob", protocol.VerbView, []string{"a"})
	assert.Contains(t, reply, "mine.txt (no access)")

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"l"})
	assert.Contains(t, reply, "mine.txt")
	assert.Contains(t, reply, "OWNER")

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"x"})
	assert.Equal(t, 422, wireCode(reply))
}

func TestRouterUnknownCommand(t *testing.T) {
	r, _ := newTestRouter(t, &fakeSS{})
	reply := r.Dispatch(context.Background(), "alice", "BOGUS", nil)
	assert.Equal(t, 400, wireCode(reply))
}

func TestRouterCheckpointVerbs(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{
		protocol.SSVerbCreate:         protocol.AckCreate,
		protocol.SSVerbCheckpoint:     protocol.AckCheckpoint,
		protocol.SSVerbRevert:         protocol.AckRevert,
		protocol.SSVerbViewCheckpoint: "v1 content.",
	}}
	r, cat := newTestRouter(t, ss)
	_, err := cat.RegisterUser("bob", "")
	require.NoError(t, err)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	reply := r.Dispatch(context.Background(), "alice", protocol.VerbCheckpoint, []string{"a.txt", "v1"})
	assert.Equal(t, "Checkpoint 'v1' created for 'a.txt'.", reply)

	// Owner-only.
	reply = r.Dispatch(context.Background(), "bob", protocol.VerbCheckpoint, []string{"a.txt", "v2"})
	assert.Equal(t, 401, wireCode(reply))

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbRevert, []string{"a.txt", "v1"})
	assert.Equal(t, "Reverted 'a.txt' to checkpoint 'v1'.", reply)

	reply = r.Dispatch(context.Background(), "alice", protocol.VerbViewCheckpoint, []string{"a.txt", "v1"})
	assert.Equal(t, "v1 content.", reply)
}

func TestRouterViewFlags(t *testing.T) {
	ss := &fakeSS{replies: map[string]string{protocol.SSVerbCreate: protocol.AckCreate}}
	r, _ := newTestRouter(t, ss)
	require.Equal(t, 0, wireCode(r.Dispatch(context.Background(), "alice", protocol.VerbCreate, []string{"a.txt"})))

	t.Run("LongFlagAccepted", func(t *testing.T) {
		reply := r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"l"})
		assert.Equal(t, 0, wireCode(reply))
		assert.Contains(t, reply, "a.txt")
	})

	t.Run("CombinedFlagsAccepted", func(t *testing.T) {
		reply := r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"la"})
		assert.Equal(t, 0, wireCode(reply))
	})

	t.Run("DashIsNotAFlag", func(t *testing.T) {
		reply := r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"-l"})
		assert.Equal(t, 422, wireCode(reply))
	})

	t.Run("TwoFlagFieldsRejected", func(t *testing.T) {
		reply := r.Dispatch(context.Background(), "alice", protocol.VerbView, []string{"l", "a"})
		assert.Equal(t, 422, wireCode(reply))
	})
}
