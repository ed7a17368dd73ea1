package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/syncserver/internal/client/engine"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var ErrUsage = errors.New("wrong arguments")

// fail prints err and returns it, so handlers can end with return a.fail(err).
func (a *App) fail(err error) error {
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return err
}

func (a *App) usage(s string) error {
	fmt.Fprintln(a.out, "Usage:", s)
	return ErrUsage
}

// lookup finds a local file by name or uuid.
func (a *App) lookup(ctx context.Context, key string) (*models.SyncAttributes, error) {
	files, err := a.session.LocalFiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].UUID == key || (files[i].RemoteFileName == key && !files[i].IsDeleted()) {
			return &files[i], nil
		}
	}
	return nil, engine.ErrUnknownFile
}

// attributes builds attributes for name, reusing the uuid of a known file
// so a second upload of the same name becomes a new version.
func (a *App) attributes(ctx context.Context, name string, meta []string) (models.SyncAttributes, error) {
	md, err := models.ParseAppMetaData(meta)
	if err != nil {
		return models.SyncAttributes{}, err
	}
	attrs := models.SyncAttributes{
		UUID:           uuid.NewString(),
		RemoteFileName: name,
		MimeType:       mime.TypeByExtension(filepath.Ext(name)),
		AppMetaData:    md,
	}
	known, err := a.lookup(ctx, name)
	switch {
	case errors.Is(err, engine.ErrUnknownFile):
	case err != nil:
		return models.SyncAttributes{}, err
	default:
		attrs.UUID = known.UUID
	}
	return attrs, nil
}

func (a *App) upload(ctx context.Context, args []string, temporary bool) error {
	if len(args) < 2 {
		return a.usage("upload <path> <name> [key=value...]")
	}
	attrs, err := a.attributes(ctx, args[1], args[2:])
	if err != nil {
		return a.fail(err)
	}
	if temporary {
		err = a.session.UploadTemporaryFile(ctx, args[0], attrs)
	} else {
		err = a.session.UploadImmutableFile(ctx, args[0], attrs)
	}
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "queued upload of %s as %s\n", args[0], attrs.UUID)
	return nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	return a.upload(ctx, args, false)
}

func (a *App) UploadTemp(ctx context.Context, args []string) error {
	return a.upload(ctx, args, true)
}

func (a *App) Put(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.usage("put <name>")
	}
	text, err := GetMultiline(a.reader, "Enter text", a.out)
	if err != nil {
		return a.fail(err)
	}
	meta, err := GetMetadata(a.reader, a.out)
	if err != nil {
		return a.fail(err)
	}
	attrs, err := a.attributes(ctx, args[0], meta)
	if err != nil {
		return a.fail(err)
	}
	if err := a.session.UploadData(ctx, []byte(text), attrs); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "queued upload of %s as %s\n", args[0], attrs.UUID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.usage("delete <name|uuid>")
	}
	f, err := a.lookup(ctx, args[0])
	if err != nil {
		return a.fail(err)
	}
	return a.fail(a.session.DeleteFile(ctx, f.UUID))
}

func (a *App) Commit(ctx context.Context) error {
	return a.fail(a.session.Commit(ctx))
}

func (a *App) Sync(ctx context.Context) error {
	a.session.NextSyncOperation()
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.usage("status <name|uuid>")
	}
	f, err := a.lookup(ctx, args[0])
	if err != nil {
		return a.fail(err)
	}
	st, err := a.session.LocalFileStatus(ctx, f.UUID)
	if err != nil {
		return a.fail(err)
	}

	version := "not uploaded"
	if st.Version != nil {
		version = strconv.FormatInt(*st.Version, 10)
	}
	fmt.Fprintf(a.out, "uuid:     %s\n", st.UUID)
	fmt.Fprintf(a.out, "name:     %s\n", st.RemoteFileName)
	fmt.Fprintf(a.out, "mime:     %s\n", st.MimeType)
	fmt.Fprintf(a.out, "size:     %s\n", humanize.Bytes(uint64(st.SizeBytes)))
	fmt.Fprintf(a.out, "version:  %s\n", version)
	fmt.Fprintf(a.out, "deleted:  %s\n", st.Deleted)
	for k, v := range st.AppMetaData {
		fmt.Fprintf(a.out, "%s: %s\n", k, v)
	}
	return nil
}

func (a *App) List(ctx context.Context) error {
	files, err := a.session.LocalFiles(ctx)
	if err != nil {
		return a.fail(err)
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "no files")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(a.out, "%s  %s\n", describe(f), f.Deleted)
	}
	return nil
}

func (a *App) ShowMode(ctx context.Context) error {
	m := a.session.Mode()
	if err := a.session.LastError(); err != nil {
		fmt.Fprintf(a.out, "%s: %v\n", m, err)
		return nil
	}
	fmt.Fprintln(a.out, m)
	return nil
}

func (a *App) Reset(ctx context.Context, args []string) error {
	debug := len(args) == 1 && args[0] == "debug"
	return a.fail(a.session.ResetFromError(debug))
}

var resetTypes = map[string]engine.ResetType{
	"forget":    engine.ResetDeleteMetaData,
	"undelete":  engine.ResetUndelete,
	"decrement": engine.ResetDecrementVersion,
}

func (a *App) ResetMeta(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return a.usage("resetmeta <name|uuid|all> <forget|undelete|decrement>")
	}
	rt, ok := resetTypes[args[1]]
	if !ok {
		return a.usage("resetmeta <name|uuid|all> <forget|undelete|decrement>")
	}

	id := ""
	if args[0] != "all" {
		f, err := a.lookup(ctx, args[0])
		if err != nil {
			return a.fail(err)
		}
		id = f.UUID
	}
	return a.fail(a.session.ResetMetaData(ctx, id, rt))
}

func (a *App) Conflicts(ctx context.Context) error {
	pending := a.delegate.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "no conflicts")
		return nil
	}
	for i, c := range pending {
		fmt.Fprintf(a.out, "%d: server %s, local %s\n", i+1, describe(c.Server), c.LocalOperation)
	}
	return nil
}

func (a *App) Resolve(ctx context.Context, args []string) error {
	const usage = "resolve <n> [keep|delete]"
	if len(args) != 1 && len(args) != 2 {
		return a.usage(usage)
	}
	n, err := strconv.Atoi(args[0])
	pending := a.delegate.Pending()
	if err != nil || n < 1 || n > len(pending) {
		return a.usage(usage)
	}

	answer := ""
	if len(args) == 2 {
		answer = args[1]
	} else {
		answer, err = GetChoice(a.reader, fmt.Sprintf("Conflict %d: keep the local change or delete it?", n), []string{"keep", "delete"}, a.out)
		if err != nil {
			return a.fail(err)
		}
	}

	var r engine.Resolution
	switch answer {
	case "keep":
		r = engine.ResolutionKeep
	case "delete":
		r = engine.ResolutionDelete
	default:
		return a.usage(usage)
	}
	return a.fail(pending[n-1].Resolve(r))
}
