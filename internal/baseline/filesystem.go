package baseline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"deltasync/internal/deltaerr"
	"deltasync/internal/record"
	"deltasync/internal/stream"
)

// Filesystem stores each client's previous baseline as one NDJSON file at
// {Path}/{clientId}/previous-input.ndjson.
type Filesystem struct {
	Path string
}

var _ Store = (*Filesystem)(nil)

func (f *Filesystem) Initialize(ctx context.Context) error {
	if f.Path == "" {
		return deltaerr.New(deltaerr.ConfigError, "filesystem baseline: path is required")
	}
	if err := ctx.Err(); err != nil {
		return deltaerr.Wrap(deltaerr.Cancelled, "initialize filesystem baseline", err)
	}
	if err := os.MkdirAll(f.Path, 0o755); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "create baseline root", err)
	}
	return nil
}

func (f *Filesystem) Backend() string { return "filesystem" }

func (f *Filesystem) clientFile(client ClientID) string {
	return filepath.Join(f.Path, string(client), "previous-input.ndjson")
}

// FetchPrevious reads the client's file. limitTo applies no server-side
// filtering on this backend; callers filter after read.
func (f *Filesystem) FetchPrevious(ctx context.Context, client ClientID, limitTo map[string]struct{}) ([]record.FieldSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.Cancelled, "fetch previous", err)
	}

	path := f.clientFile(client)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "open baseline file", err)
	}
	defer file.Close()

	all, err := stream.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return all, nil
}

// UpdatePrevious rewrites the client's file with data, or deletes it when
// data is empty. failureCount is ignored on this backend, the caller has
// already computed the repaired projection.
func (f *Filesystem) UpdatePrevious(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string, failureCount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.Cancelled, "update previous", err)
	}

	path := f.clientFile(client)

	if len(data) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, deltaerr.Wrap(deltaerr.IO, "delete baseline file", err)
		}
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "create client directory", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "create baseline temp file", err)
	}
	if err := stream.WriteAll(file, data); err != nil {
		file.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return 0, deltaerr.Wrap(deltaerr.IO, "close baseline temp file", err)
	}

	if err := moveResource(tmp, path); err != nil {
		return 0, err
	}
	return len(data), nil
}

// moveResource renames src to dst so the baseline file is replaced
// atomically. Cross-device renames fall back to copy-then-delete.
func moveResource(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move resource: open source", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move resource: create destination", err)
	}
	if _, err := copyAll(out, in); err != nil {
		out.Close()
		return deltaerr.Wrap(deltaerr.IO, "move resource: copy", err)
	}
	if err := out.Close(); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move resource: close destination", err)
	}
	if err := os.Remove(src); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "move resource: remove source", err)
	}
	return nil
}

func copyAll(dst *os.File, src *os.File) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}
