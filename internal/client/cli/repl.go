package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface of the REPL. App satisfies it; tests use
// a recording stub.
type execIface interface {
	Upload(ctx context.Context, args []string) error
	UploadTemp(ctx context.Context, args []string) error
	Put(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Commit(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context, args []string) error
	List(ctx context.Context) error
	ShowMode(ctx context.Context) error
	Reset(ctx context.Context, args []string) error
	ResetMeta(ctx context.Context, args []string) error
	Conflicts(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  upload <path> <name> [key=value...]     queue an upload of a file
  uploadtmp <path> <name> [key=value...]  same, the file is removed once uploaded
  put <name>                              queue an upload of typed text
  delete <name|uuid>                      queue a deletion
  commit                                  seal queued operations and sync
  sync                                    look for server changes
  status <name|uuid>                      show what is known about a file
  (l)ist                                  list local files
  mode                                    show the sync mode
  reset [debug]                           leave an error mode
  resetmeta <name|uuid|all> <forget|undelete|decrement>
  conflicts                               list conflicts waiting for a decision
  resolve <n> [keep|delete]               decide a conflict
  exit | quit`

// runREPL reads commands line by line and dispatches them to a. Handlers
// report their own errors, so results are ignored here. The loop exits on
// EOF or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "sync (%s)> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)
		case "upload":
			_ = a.Upload(ctx, args)
		case "uploadtmp":
			_ = a.UploadTemp(ctx, args)
		case "put":
			_ = a.Put(ctx, args)
		case "delete":
			_ = a.Delete(ctx, args)
		case "commit":
			_ = a.Commit(ctx)
		case "sync":
			_ = a.Sync(ctx)
		case "status":
			_ = a.Status(ctx, args)
		case "l", "list":
			_ = a.List(ctx)
		case "mode":
			_ = a.ShowMode(ctx)
		case "reset":
			_ = a.Reset(ctx, args)
		case "resetmeta":
			_ = a.ResetMeta(ctx, args)
		case "conflicts":
			_ = a.Conflicts(ctx)
		case "resolve":
			_ = a.Resolve(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
}
