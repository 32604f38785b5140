package nameserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/scribefs/scribefs/internal/cli/output"
	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/protocol"
	"github.com/scribefs/scribefs/pkg/storage"
)

// Executor runs EXEC file contents. The implementation is an external
// collaborator; the name server only fetches the bytes, gates on read
// permission, and relays the output.
type Executor interface {
	Exec(ctx context.Context, content string) (string, error)
}

// Router dispatches client verbs against the catalog. Catalog-only verbs
// are answered from memory; mediated verbs run one storage transaction
// outside the catalog lock and mutate the catalog only on the storage
// server's acknowledgement; data-plane verbs reply with a redirect
// descriptor.
type Router struct {
	cat     *catalog.Service
	ss      Transactor
	exec    Executor
	metrics Metrics
}

// NewRouter wires a router. exec may be nil, in which case EXEC fails
// with a server error.
func NewRouter(cat *catalog.Service, ss Transactor, exec Executor, m Metrics) *Router {
	if m == nil {
		m = NopMetrics{}
	}
	return &Router{cat: cat, ss: ss, exec: exec, metrics: m}
}

// Dispatch handles one authenticated request and returns the reply
// payload (without the end marker). Errors are already encoded as
// ERROR;code;message records.
func (r *Router) Dispatch(ctx context.Context, user, verb string, args []string) string {
	payload, err := r.handle(ctx, user, verb, args)
	if err != nil {
		werr := mapError(err)
		r.metrics.RecordCommand(verb, int(werr.Code))
		logger.Warn("request failed",
			logger.Username(user), logger.Verb(verb),
			logger.Status(int(werr.Code)), logger.StatusMsg(werr.Message))
		return werr.Error()
	}
	r.metrics.RecordCommand(verb, 0)
	return payload
}

func (r *Router) handle(ctx context.Context, user, verb string, args []string) (string, error) {
	switch verb {
	case protocol.VerbListUsers:
		return r.listUsers()
	case protocol.VerbView:
		return r.view(user, args)
	case protocol.VerbInfo:
		return r.info(user, args)
	case protocol.VerbAddAccess:
		return r.addAccess(user, args)
	case protocol.VerbRemAccess:
		return r.remAccess(user, args)
	case protocol.VerbCreate:
		return r.create(ctx, user, args)
	case protocol.VerbDelete:
		return r.delete(ctx, user, args)
	case protocol.VerbRead:
		return r.redirect(user, args, protocol.VerbRead, protocol.RedirectRead)
	case protocol.VerbStream:
		return r.redirect(user, args, protocol.VerbStream, protocol.RedirectStream)
	case protocol.VerbWrite:
		return r.redirectWrite(user, args)
	case protocol.VerbUndo:
		return r.undo(ctx, user, args)
	case protocol.VerbUpdateMeta:
		return r.updateMeta(ctx, user, args)
	case protocol.VerbExec:
		return r.execFile(ctx, user, args)
	case protocol.VerbCreateFolder:
		return r.createFolder(user, args)
	case protocol.VerbViewFolder:
		return r.viewFolder(user, args)
	case protocol.VerbCheckpoint:
		return r.checkpoint(ctx, user, args)
	case protocol.VerbRevert:
		return r.revert(ctx, user, args)
	case protocol.VerbViewCheckpoint:
		return r.viewCheckpoint(ctx, user, args)
	case protocol.VerbRequestAccess:
		return r.requestAccess(user, args)
	case protocol.VerbViewRequests:
		return r.viewRequests(user, args)
	case protocol.VerbApprove:
		return r.approve(user, args)
	case protocol.VerbReject:
		return r.reject(user, args)
	case protocol.VerbAnnotate:
		return r.annotate(user, args)
	case protocol.VerbShowAnnotation:
		return r.showAnnotation(user, args)
	default:
		return "", protocol.NewWireError(protocol.CodeUnknownCommand, "unknown command %q", verb)
	}
}

// errArgs builds the canonical bad-arity error.
func errArgs(verb, usage string) error {
	return protocol.NewWireError(protocol.CodeInvalidArgs, "%s expects %s", verb, usage)
}

// ============================================================================
// Catalog-only verbs
// ============================================================================

func (r *Router) listUsers() (string, error) {
	users := r.cat.Users()
	lines := make([]string, len(users))
	for i, u := range users {
		lines[i] = u.Username
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) view(user string, args []string) (string, error) {
	var long, all bool
	if len(args) > 1 {
		return "", errArgs(protocol.VerbView, "at most one flag field")
	}
	if len(args) == 1 {
		for _, f := range args[0] {
			switch f {
			case 'l':
				long = true
			case 'a':
				all = true
			default:
				return "", protocol.NewWireError(protocol.CodeInvalidArgs, "unknown VIEW flag %q", string(f))
			}
		}
	}

	files := r.cat.List(user, all)
	if len(files) == 0 {
		return "(no files)", nil
	}
	if !long {
		lines := make([]string, 0, len(files))
		for _, fi := range files {
			name := fi.Filename
			if fi.IsDirectory {
				name += "/"
			}
			if all && !fi.IsDirectory && !readable(fi, user) {
				name += " (no access)"
			}
			lines = append(lines, name)
		}
		return strings.Join(lines, "\n"), nil
	}

	table := output.NewTableData("NAME", "OWNER", "LOCATION", "WORDS", "CHARS", "ACCESS")
	for _, fi := range files {
		location := fi.SS.String()
		if fi.IsDirectory {
			location = "(folder)"
		}
		access := fi.AccessList()
		if all && !fi.IsDirectory && !readable(fi, user) {
			access = "(no access)"
		}
		table.AddRow(fi.Filename, fi.Owner, location,
			strconv.Itoa(fi.WordCount), strconv.Itoa(fi.CharCount), access)
	}
	var b strings.Builder
	if err := output.PrintTable(&b, table); err != nil {
		return "", fmt.Errorf("rendering listing: %w", err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// readable mirrors the catalog's read gate for snapshot rows.
func readable(fi catalog.FileInfo, user string) bool {
	if fi.Owner == user {
		return true
	}
	_, ok := fi.Access[user]
	return ok
}

func (r *Router) info(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbInfo, "a filename")
	}
	fi, err := r.cat.Info(args[0], user)
	if err != nil {
		return "", err
	}
	lines := []string{
		fmt.Sprintf("File: %s", fi.Filename),
		fmt.Sprintf("Owner: %s", fi.Owner),
		fmt.Sprintf("Location: %s", fi.SS),
		fmt.Sprintf("Words: %d", fi.WordCount),
		fmt.Sprintf("Chars: %d", fi.CharCount),
		fmt.Sprintf("Last access: %s", fi.LastAccess.Format("2006-01-02 15:04:05")),
	}
	if acl := fi.AccessList(); acl != "" {
		lines = append(lines, fmt.Sprintf("Access: %s", acl))
	}
	if fi.Annotation != "" {
		lines = append(lines, fmt.Sprintf("Annotation: %s", fi.Annotation))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) addAccess(user string, args []string) (string, error) {
	if len(args) != 3 {
		return "", errArgs(protocol.VerbAddAccess, "filename, username, and R|W")
	}
	level, err := catalog.ParseAccessLevel(args[2])
	if err != nil {
		return "", protocol.NewWireError(protocol.CodeInvalidArgs, "%v", err)
	}
	if err := r.cat.Grant(args[0], user, args[1], level); err != nil {
		return "", err
	}
	return fmt.Sprintf("Granted %s on '%s' to %s.", level, args[0], args[1]), nil
}

func (r *Router) remAccess(user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbRemAccess, "filename and username")
	}
	if err := r.cat.Revoke(args[0], user, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Revoked access on '%s' from %s.", args[0], args[1]), nil
}

func (r *Router) createFolder(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbCreateFolder, "a folder name")
	}
	if err := r.cat.CreateFolder(args[0], user); err != nil {
		return "", err
	}
	return fmt.Sprintf("Folder '%s' created.", args[0]), nil
}

func (r *Router) viewFolder(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbViewFolder, "a folder name")
	}
	files, err := r.cat.ViewFolder(args[0], user)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "(empty folder)", nil
	}
	lines := make([]string, len(files))
	for i, fi := range files {
		lines[i] = fi.Filename
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) requestAccess(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbRequestAccess, "a filename")
	}
	if err := r.cat.RequestAccess(args[0], user); err != nil {
		return "", err
	}
	return fmt.Sprintf("Access request for '%s' recorded.", args[0]), nil
}

func (r *Router) viewRequests(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbViewRequests, "a filename")
	}
	pending, err := r.cat.PendingRequests(args[0], user)
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "(no pending requests)", nil
	}
	return strings.Join(pending, "\n"), nil
}

func (r *Router) approve(user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbApprove, "filename and username")
	}
	if err := r.cat.Approve(args[0], user, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Granted R on '%s' to %s.", args[0], args[1]), nil
}

func (r *Router) reject(user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbReject, "filename and username")
	}
	if err := r.cat.Reject(args[0], user, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Rejected %s's request for '%s'.", args[1], args[0]), nil
}

func (r *Router) annotate(user string, args []string) (string, error) {
	if len(args) < 2 {
		return "", errArgs(protocol.VerbAnnotate, "filename and text")
	}
	// Annotation text may contain the delimiter; re-join what the frame
	// split.
	text := strings.Join(args[1:], protocol.FieldSep)
	if err := r.cat.Annotate(args[0], user, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Annotation saved on '%s'.", args[0]), nil
}

func (r *Router) showAnnotation(user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbShowAnnotation, "a filename")
	}
	text, err := r.cat.Annotation(args[0], user)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "(no annotation)", nil
	}
	return text, nil
}

// ============================================================================
// Redirect verbs
// ============================================================================

func (r *Router) redirect(user string, args []string, verb, prefix string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(verb, "a filename")
	}
	ep, err := r.cat.RouteFor(args[0], user, catalog.AccessRead)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s;%s;%d;%s", prefix, ep.IP, ep.Port, args[0]), nil
}

func (r *Router) redirectWrite(user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbWrite, "filename and sentence number")
	}
	sentence, err := strconv.Atoi(args[1])
	if err != nil || sentence < 0 {
		return "", protocol.NewWireError(protocol.CodeInvalidArgs, "bad sentence number %q", args[1])
	}
	ep, err := r.cat.RouteFor(args[0], user, catalog.AccessWrite)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s;%s;%d;%s;%d", protocol.RedirectWrite, ep.IP, ep.Port, args[0], sentence), nil
}

// ============================================================================
// Mediated verbs: one storage transaction, catalog mutation only on ACK
// ============================================================================

func (r *Router) create(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbCreate, "a filename")
	}
	name := args[0]
	ep, err := r.cat.PlanCreate(name, user)
	if err != nil {
		return "", err
	}

	payload, err := r.transact(ctx, ep, protocol.SSVerbCreate, name)
	if err != nil {
		return "", err
	}
	if err := expectAck(payload, protocol.AckCreate); err != nil {
		return "", err
	}
	if err := r.cat.InstallFile(name, user, ep); err != nil {
		return "", err
	}
	logger.Info("file created", logger.Filename(name), logger.Owner(user), logger.Endpoint(ep.String()))
	return fmt.Sprintf("File '%s' created successfully.", name), nil
}

func (r *Router) delete(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbDelete, "a filename")
	}
	name := args[0]
	ep, err := r.cat.RouteOwner(name, user)
	if err != nil {
		return "", err
	}

	payload, err := r.transact(ctx, ep, protocol.SSVerbDelete, name)
	if err != nil {
		return "", err
	}
	if err := expectAck(payload, protocol.AckDelete); err != nil {
		return "", err
	}
	if err := r.cat.RemoveFile(name); err != nil {
		return "", err
	}
	logger.Info("file deleted", logger.Filename(name), logger.Owner(user))
	return fmt.Sprintf("File '%s' deleted successfully.", name), nil
}

func (r *Router) undo(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbUndo, "a filename")
	}
	name := args[0]
	ep, err := r.cat.RouteFor(name, user, catalog.AccessWrite)
	if err != nil {
		return "", err
	}

	payload, err := r.transact(ctx, ep, protocol.SSVerbUndo, name)
	if err != nil {
		return "", err
	}
	if err := expectAck(payload, protocol.AckUndo); err != nil {
		return "", err
	}
	return fmt.Sprintf("Undo applied to '%s'.", name), nil
}

func (r *Router) updateMeta(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbUpdateMeta, "a filename")
	}
	name := args[0]
	ep, err := r.cat.RouteFor(name, user, catalog.AccessWrite)
	if err != nil {
		return "", err
	}

	content, err := r.transact(ctx, ep, protocol.SSVerbRead, name)
	if err != nil {
		return "", err
	}
	words, chars := storage.Counts(content)
	if err := r.cat.UpdateCounts(name, words, chars); err != nil {
		return "", err
	}
	return fmt.Sprintf("Metadata updated for '%s': %d words, %d chars.", name, words, chars), nil
}

func (r *Router) execFile(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errArgs(protocol.VerbExec, "a filename")
	}
	if r.exec == nil {
		return "", protocol.NewWireError(protocol.CodeServerMisc, "exec is not enabled")
	}
	name := args[0]
	ep, err := r.cat.RouteFor(name, user, catalog.AccessRead)
	if err != nil {
		return "", err
	}

	content, err := r.transact(ctx, ep, protocol.SSVerbRead, name)
	if err != nil {
		return "", err
	}
	out, err := r.exec.Exec(ctx, content)
	if err != nil {
		return "", protocol.NewWireError(protocol.CodeServerMisc, "exec failed: %v", err)
	}
	return out, nil
}

func (r *Router) checkpoint(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbCheckpoint, "filename and tag")
	}
	name, tag := args[0], args[1]
	ep, err := r.cat.RouteOwner(name, user)
	if err != nil {
		return "", err
	}

	payload, err := r.transact(ctx, ep, protocol.SSVerbCheckpoint, name, tag)
	if err != nil {
		return "", err
	}
	if err := expectAck(payload, protocol.AckCheckpoint); err != nil {
		return "", err
	}
	return fmt.Sprintf("Checkpoint '%s' created for '%s'.", tag, name), nil
}

func (r *Router) revert(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbRevert, "filename and tag")
	}
	name, tag := args[0], args[1]
	ep, err := r.cat.RouteOwner(name, user)
	if err != nil {
		return "", err
	}

	payload, err := r.transact(ctx, ep, protocol.SSVerbRevert, name, tag)
	if err != nil {
		return "", err
	}
	if err := expectAck(payload, protocol.AckRevert); err != nil {
		return "", err
	}
	return fmt.Sprintf("Reverted '%s' to checkpoint '%s'.", name, tag), nil
}

func (r *Router) viewCheckpoint(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", errArgs(protocol.VerbViewCheckpoint, "filename and tag")
	}
	ep, err := r.cat.RouteFor(args[0], user, catalog.AccessRead)
	if err != nil {
		return "", err
	}
	return r.transact(ctx, ep, protocol.SSVerbViewCheckpoint, args[0], args[1])
}

// transact runs one storage transaction and records its outcome.
func (r *Router) transact(ctx context.Context, ep catalog.Endpoint, verb string, args ...string) (string, error) {
	payload, err := r.ss.Transact(ctx, ep, verb, args...)
	r.metrics.RecordSSTransaction(verb, err == nil)
	return payload, err
}

// ============================================================================
// Error mapping
// ============================================================================

// mapError translates domain errors into wire errors. Anything
// unrecognized becomes a server-misc error so internal details never
// leak to the session.
func mapError(err error) *protocol.WireError {
	var werr *protocol.WireError
	if errors.As(err, &werr) {
		return werr
	}

	var ssErr *SSError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return protocol.NewWireError(protocol.CodeNotFound, "%v", err)
	case errors.Is(err, catalog.ErrExists):
		return protocol.NewWireError(protocol.CodeExists, "%v", err)
	case errors.Is(err, catalog.ErrUserNotFound):
		return protocol.NewWireError(protocol.CodeUserNotFound, "%v", err)
	case errors.Is(err, catalog.ErrNotOwner):
		return protocol.NewWireError(protocol.CodeNotOwner, "%v", err)
	case errors.Is(err, catalog.ErrPermission):
		return protocol.NewWireError(protocol.CodePermissionDenied, "%v", err)
	case errors.Is(err, catalog.ErrNoStorage):
		return protocol.NewWireError(protocol.CodeNoStorage, "%v", err)
	case errors.Is(err, catalog.ErrInvalidName):
		return protocol.NewWireError(protocol.CodeInvalidInput, "%v", err)
	case errors.Is(err, catalog.ErrNoRequest),
		errors.Is(err, catalog.ErrIsDirectory),
		errors.Is(err, catalog.ErrNotDirectory):
		return protocol.NewWireError(protocol.CodeInvalidArgs, "%v", err)
	case errors.Is(err, ErrSSUnreachable):
		return protocol.NewWireError(protocol.CodeSSUnreachable, "%v", err)
	case errors.As(err, &ssErr):
		return protocol.NewWireError(classifySSError(ssErr), "%s", ssErr.Message)
	default:
		logger.Error("internal error", logger.Err(err))
		return protocol.NewWireError(protocol.CodeServerMisc, "internal server error")
	}
}

// classifySSError narrows a free-text storage error to a client code
// where the message makes the cause unambiguous.
func classifySSError(e *SSError) protocol.Code {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "exists"):
		return protocol.CodeExists
	case strings.Contains(msg, "not found"):
		return protocol.CodeNotFound
	case strings.Contains(msg, "out of range"):
		return protocol.CodeInvalidArgs
	default:
		return protocol.CodeSSFailure
	}
}
