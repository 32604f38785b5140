package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribefs/scribefs/internal/cli/output"
	"github.com/scribefs/scribefs/internal/cli/prompt"
	"github.com/scribefs/scribefs/pkg/client"
	"github.com/scribefs/scribefs/pkg/protocol"
)

var streamDelay time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&streamDelay, "stream-delay", 200*time.Millisecond,
		"Delay between words when streaming a file")
}

const sessionHelp = `Commands:
  users                         List registered users
  view [-l|-a]                  List accessible files (-l long, -a all)
  create <file>                 Create an empty file
  delete <file>                 Delete a file you own
  read <file>                   Print a file's contents
  write <file> <sentence>       Edit one sentence interactively
  stream <file>                 Print a file word by word
  undo <file>                   Revert the last committed write
  info <file>                   Show file metadata
  grant <file> <user> <R|W>     Give a user access
  revoke <file> <user>          Remove a user's access
  request <file>                Ask the owner for access
  requests <file>               List pending requests (owner)
  approve <file> <user>         Approve a pending request (owner)
  reject <file> <user>          Reject a pending request (owner)
  annotate <file> <text...>     Attach a note to a file
  annotation <file>             Show a file's note
  mkdir <folder>                Create a folder
  ls <folder>                   List a folder's files
  checkpoint <file> <tag>       Snapshot a file under a tag
  revert <file> <tag>           Restore a snapshot (undoable)
  snapshot <file> <tag>         Print the snapshot saved under a tag
  exec <file>                   Run an executable file on the server
  help                          Show this help
  exit                          Leave the session`

func runSession(cmd *cobra.Command, args []string) error {
	printer := output.NewPrinter(os.Stdout, !noColor)

	username := usernameFlag
	if username == "" {
		var err error
		username, err = prompt.Username("Username")
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := client.Connect(ctx, nameServerAddr, username)
	if err != nil {
		return err
	}
	defer session.Close()
	printer.Success(fmt.Sprintf("Connected to %s as %s. Type \"help\" for commands.", nameServerAddr, username))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		printer.Printf("%s> ", username)
		if !scanner.Scan() {
			printer.Println()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if cmd := strings.ToLower(fields[0]); cmd == "exit" || cmd == "quit" {
			return nil
		}
		if err := dispatch(ctx, printer, session, scanner, fields); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			printer.Error(err.Error())
		}
	}
}

// dispatch maps one interactive command to its wire requests.
func dispatch(ctx context.Context, printer *output.Printer, session *client.Session, scanner *bufio.Scanner, fields []string) error {
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help":
		printer.Println(sessionHelp)
		return nil

	case "users":
		return relay(printer, session, protocol.VerbListUsers)

	case "view":
		return relay(printer, session, protocol.VerbView, viewFlags(args)...)

	case "create":
		if len(args) != 1 {
			return fmt.Errorf("usage: create <file>")
		}
		return relay(printer, session, protocol.VerbCreate, args[0])

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: delete <file>")
		}
		// Confirm through the session scanner; a second reader on
		// stdin would race its buffer.
		printer.Printf("Delete '%s'? [y/N] ", args[0])
		if !scanner.Scan() {
			return scanner.Err()
		}
		if answer := strings.ToLower(strings.TrimSpace(scanner.Text())); answer != "y" && answer != "yes" {
			printer.Println("Aborted.")
			return nil
		}
		return relay(printer, session, protocol.VerbDelete, args[0])

	case "read":
		if len(args) != 1 {
			return fmt.Errorf("usage: read <file>")
		}
		content, err := session.Read(ctx, args[0])
		if err != nil {
			return err
		}
		printer.Println(content)
		return nil

	case "write":
		return runWrite(ctx, printer, session, scanner, args)

	case "stream":
		if len(args) != 1 {
			return fmt.Errorf("usage: stream <file>")
		}
		return session.Stream(ctx, args[0], printer.Writer(), streamDelay)

	case "undo":
		if len(args) != 1 {
			return fmt.Errorf("usage: undo <file>")
		}
		return relay(printer, session, protocol.VerbUndo, args[0])

	case "info":
		if len(args) != 1 {
			return fmt.Errorf("usage: info <file>")
		}
		return relay(printer, session, protocol.VerbInfo, args[0])

	case "grant":
		if len(args) != 3 {
			return fmt.Errorf("usage: grant <file> <user> <R|W>")
		}
		return relay(printer, session, protocol.VerbAddAccess, args[0], args[1], strings.ToUpper(args[2]))

	case "revoke":
		if len(args) != 2 {
			return fmt.Errorf("usage: revoke <file> <user>")
		}
		return relay(printer, session, protocol.VerbRemAccess, args[0], args[1])

	case "request":
		if len(args) != 1 {
			return fmt.Errorf("usage: request <file>")
		}
		return relay(printer, session, protocol.VerbRequestAccess, args[0])

	case "requests":
		if len(args) != 1 {
			return fmt.Errorf("usage: requests <file>")
		}
		return relay(printer, session, protocol.VerbViewRequests, args[0])

	case "approve":
		if len(args) != 2 {
			return fmt.Errorf("usage: approve <file> <user>")
		}
		return relay(printer, session, protocol.VerbApprove, args[0], args[1])

	case "reject":
		if len(args) != 2 {
			return fmt.Errorf("usage: reject <file> <user>")
		}
		return relay(printer, session, protocol.VerbReject, args[0], args[1])

	case "annotate":
		if len(args) < 2 {
			return fmt.Errorf("usage: annotate <file> <text...>")
		}
		return relay(printer, session, protocol.VerbAnnotate, args[0], strings.Join(args[1:], " "))

	case "annotation":
		if len(args) != 1 {
			return fmt.Errorf("usage: annotation <file>")
		}
		return relay(printer, session, protocol.VerbShowAnnotation, args[0])

	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: mkdir <folder>")
		}
		return relay(printer, session, protocol.VerbCreateFolder, args[0])

	case "ls":
		if len(args) != 1 {
			return fmt.Errorf("usage: ls <folder>")
		}
		return relay(printer, session, protocol.VerbViewFolder, args[0])

	case "checkpoint":
		if len(args) != 2 {
			return fmt.Errorf("usage: checkpoint <file> <tag>")
		}
		return relay(printer, session, protocol.VerbCheckpoint, args[0], args[1])

	case "revert":
		if len(args) != 2 {
			return fmt.Errorf("usage: revert <file> <tag>")
		}
		return relay(printer, session, protocol.VerbRevert, args[0], args[1])

	case "snapshot":
		if len(args) != 2 {
			return fmt.Errorf("usage: snapshot <file> <tag>")
		}
		return relay(printer, session, protocol.VerbViewCheckpoint, args[0], args[1])

	case "exec":
		if len(args) != 1 {
			return fmt.Errorf("usage: exec <file>")
		}
		return relay(printer, session, protocol.VerbExec, args[0])

	default:
		return fmt.Errorf("unknown command %q (type \"help\")", fields[0])
	}
}

// viewFlags folds REPL-style flags (-l, -a, -la, or bare l/a) into the
// single flag field the wire protocol expects.
func viewFlags(args []string) []string {
	var flags strings.Builder
	for _, a := range args {
		flags.WriteString(strings.TrimPrefix(a, "-"))
	}
	if flags.Len() == 0 {
		return nil
	}
	return []string{flags.String()}
}

// runWrite collects word edits interactively and commits them in one
// write session. Each edit line is "<word-index> <content...>"; a blank
// line commits.
func runWrite(ctx context.Context, printer *output.Printer, session *client.Session, scanner *bufio.Scanner, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write <file> <sentence>")
	}
	sentence, err := strconv.Atoi(args[1])
	if err != nil || sentence < 0 {
		return fmt.Errorf("sentence must be a non-negative number")
	}

	printer.Println("Enter edits as \"<word-index> <content>\", blank line to commit:")
	var edits []client.WordEdit
	for {
		printer.Printf("  edit> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		idxStr, content, found := strings.Cut(line, " ")
		if !found {
			printer.Warning("expected \"<word-index> <content>\"")
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			printer.Warning("word index must be a non-negative number")
			continue
		}
		edits = append(edits, client.WordEdit{WordIdx: idx, Content: strings.TrimSpace(content)})
	}
	if len(edits) == 0 {
		printer.Println("Nothing to write.")
		return nil
	}

	if err := session.Write(ctx, args[0], sentence, edits); err != nil {
		return err
	}
	printer.Success(fmt.Sprintf("Committed %d edit(s) to '%s'.", len(edits), args[0]))
	return nil
}

// relay sends one metadata request and prints the reply.
func relay(printer *output.Printer, session *client.Session, verb string, args ...string) error {
	reply, err := session.Send(verb, args...)
	if err != nil {
		return err
	}
	printer.Println(reply)
	return nil
}
