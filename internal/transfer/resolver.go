package transfer

import (
	"context"
	"fmt"

	"pentagon/internal/blobstore"
	"pentagon/internal/workspace"

	pentagonerrors "pentagon/pkg/errors"
)

// copyInMatrix and copyOutMatrix encode the legal source->sink pairs from
// §4.3 as data rather than as nested conditionals, so the table itself is
// the auditable contract and property tests can walk it mechanically.
var copyInMatrix = map[Kind]map[Kind]bool{
	KindLocal:  {KindLocal: true, KindTmp: true, KindStdin: true},
	KindRemote: {KindLocal: true, KindTmp: true, KindStdin: true},
	KindTmp:    {KindLocal: true, KindTmp: true, KindStdin: true},
}

var copyOutMatrix = map[Kind]map[Kind]bool{
	KindStdout: {KindTmp: true, KindRemote: true},
	KindStderr: {KindTmp: true, KindRemote: true},
	KindLocal:  {KindTmp: true, KindRemote: true},
}

// returnFileSources is the set of Kinds legal as a return_files source.
// stdin is never a valid source anywhere in the matrix.
var returnFileSources = map[Kind]bool{
	KindLocal:  true,
	KindRemote: true,
	KindStdout: true,
	KindStderr: true,
	KindTmp:    true,
}

func legalCopyIn(from, to Kind) bool {
	sinks, ok := copyInMatrix[from]
	return ok && sinks[to]
}

func legalCopyOut(from, to Kind) bool {
	sinks, ok := copyOutMatrix[from]
	return ok && sinks[to]
}

// Resolver holds the per-request state needed to resolve FilePath
// endpoints against the workspace, the tmp buffer table, the blob store,
// and the most recently captured stdout/stderr of the running stage.
type Resolver struct {
	ws    *workspace.Workspace
	blobs blobstore.Store
	tmp   map[uint32][]byte

	// stdout/stderr captured from the stage that just finished, consulted
	// by copy_out and return_files.
	stdout []byte
	stderr []byte
}

// NewResolver creates a Resolver scoped to one workspace and blob store.
// The tmp buffer table's lifetime is the whole request: create one
// Resolver per request and reuse it across every stage.
func NewResolver(ws *workspace.Workspace, blobs blobstore.Store) *Resolver {
	return &Resolver{ws: ws, blobs: blobs, tmp: make(map[uint32][]byte)}
}

// SetStageOutput records the stdout/stderr the just-finished stage
// produced, so subsequent copy_out/return_files calls can read them.
func (r *Resolver) SetStageOutput(stdout, stderr []byte) {
	r.stdout = stdout
	r.stderr = stderr
}

// WorkspaceRoot returns the host filesystem path of the workspace this
// resolver is bound to, for handing to the sandbox as its bind-mount source.
func (r *Resolver) WorkspaceRoot() string {
	return r.ws.Root()
}

// ApplyCopyIn runs copy_in transfers in order and returns the accumulated
// stdin bytes for the stage about to start (the last transfer targeting
// stdin wins, matching in-order application of every transfer's effects).
func (r *Resolver) ApplyCopyIn(ctx context.Context, transfers []ExecutionTransfer) ([]byte, error) {
	var stdin []byte
	for _, t := range transfers {
		if !legalCopyIn(t.From.Kind, t.To.Kind) {
			return nil, pentagonerrors.Newf(pentagonerrors.TransferError, "copy_in: %s -> %s is not a legal transfer", t.From.Kind, t.To.Kind)
		}
		data, err := r.read(ctx, t.From)
		if err != nil {
			return nil, err
		}
		switch t.To.Kind {
		case KindLocal:
			if err := r.ws.WriteFile(t.To.Name, data, t.To.Executable); err != nil {
				return nil, err
			}
		case KindTmp:
			r.tmp[t.To.TmpID] = data
		case KindStdin:
			stdin = data
		default:
			return nil, pentagonerrors.Newf(pentagonerrors.TransferError, "copy_in: unsupported sink %s", t.To.Kind)
		}
	}
	return stdin, nil
}

// ApplyCopyOut runs copy_out transfers in order against the captured
// stdout/stderr of the stage that just finished.
func (r *Resolver) ApplyCopyOut(ctx context.Context, transfers []ExecutionTransfer) error {
	for _, t := range transfers {
		if !legalCopyOut(t.From.Kind, t.To.Kind) {
			return pentagonerrors.Newf(pentagonerrors.TransferError, "copy_out: %s -> %s is not a legal transfer", t.From.Kind, t.To.Kind)
		}
		data, err := r.read(ctx, t.From)
		if err != nil {
			return err
		}
		switch t.To.Kind {
		case KindTmp:
			r.tmp[t.To.TmpID] = data
		case KindRemote:
			if err := r.blobs.Store(ctx, t.To.Key, data); err != nil {
				return pentagonerrors.Wrapf(err, pentagonerrors.BlobStoreError, "store %q", t.To.Key)
			}
		default:
			return pentagonerrors.Newf(pentagonerrors.TransferError, "copy_out: unsupported sink %s", t.To.Kind)
		}
	}
	return nil
}

// MaterializeReturnFiles resolves each declared return_files source into a
// NamedBytes entry, named per §3: "stdout", "stderr", the local relative
// path, the blob key, or "tmp:<id>".
func (r *Resolver) MaterializeReturnFiles(ctx context.Context, paths []FilePath) ([]NamedBytes, error) {
	out := make([]NamedBytes, 0, len(paths))
	for _, p := range paths {
		if !returnFileSources[p.Kind] {
			return nil, pentagonerrors.Newf(pentagonerrors.TransferError, "return_files: %s is not a valid source", p.Kind)
		}
		data, err := r.read(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedBytes{Name: returnFileName(p), Content: data})
	}
	return out, nil
}

func returnFileName(p FilePath) string {
	switch p.Kind {
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindLocal:
		return p.Name
	case KindRemote:
		return p.Key
	case KindTmp:
		return fmt.Sprintf("tmp:%d", p.TmpID)
	default:
		return string(p.Kind)
	}
}

// read dereferences a FilePath source, returning its current bytes.
func (r *Resolver) read(ctx context.Context, p FilePath) ([]byte, error) {
	switch p.Kind {
	case KindLocal:
		return r.ws.ReadFile(p.Name)
	case KindRemote:
		data, err := r.blobs.Fetch(ctx, p.Key)
		if err != nil {
			return nil, pentagonerrors.Wrapf(err, pentagonerrors.BlobStoreError, "fetch %q", p.Key)
		}
		return data, nil
	case KindTmp:
		data, ok := r.tmp[p.TmpID]
		if !ok {
			return nil, pentagonerrors.Newf(pentagonerrors.TransferError, "tmp id %d read before it was written", p.TmpID)
		}
		return data, nil
	case KindStdout:
		return r.stdout, nil
	case KindStderr:
		return r.stderr, nil
	default:
		return nil, pentagonerrors.Newf(pentagonerrors.TransferError, "%s is not a valid transfer source", p.Kind)
	}
}

// PrestageFile writes a request-level File entry into the workspace,
// fetching from the blob store first if it is a remote reference.
func (r *Resolver) PrestageFile(ctx context.Context, f File) error {
	switch f.Kind {
	case KindLocal:
		return r.ws.WriteFile(f.Name, f.Content, false)
	case KindRemote:
		data, err := r.blobs.Fetch(ctx, f.Key)
		if err != nil {
			return pentagonerrors.Wrapf(err, pentagonerrors.BlobStoreError, "fetch %q", f.Key)
		}
		return r.ws.WriteFile(f.Name, data, false)
	default:
		return pentagonerrors.Newf(pentagonerrors.TransferError, "prestage: unsupported file kind %s", f.Kind)
	}
}
