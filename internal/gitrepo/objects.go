package gitrepo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Tree entry modes.
const (
	ModeFile    = "100644"
	ModeSymlink = "120000"
	ModeTree    = "040000"
)

// TreeEntry is one line of a tree object.
type TreeEntry struct {
	Mode string
	Type string
	Hash string
	Name string
}

// IsTree reports whether the entry is a subtree.
func (e TreeEntry) IsTree() bool { return e.Type == "tree" }

// IsSymlink reports whether the entry is a symbolic link blob.
func (e TreeEntry) IsSymlink() bool { return e.Type == "blob" && e.Mode == ModeSymlink }

// IsRegular reports whether the entry is a non-symlink blob.
func (e TreeEntry) IsRegular() bool { return e.Type == "blob" && e.Mode != ModeSymlink }

// Blob returns a regular-file entry.
func Blob(name, hash string) TreeEntry {
	return TreeEntry{Mode: ModeFile, Type: "blob", Hash: hash, Name: name}
}

// Symlink returns a symbolic-link entry whose target blob is hash.
func Symlink(name, hash string) TreeEntry {
	return TreeEntry{Mode: ModeSymlink, Type: "blob", Hash: hash, Name: name}
}

// Subtree returns a directory entry.
func Subtree(name, hash string) TreeEntry {
	return TreeEntry{Mode: ModeTree, Type: "tree", Hash: hash, Name: name}
}

// HashObject writes data as a blob and returns its id.
func (r *Repo) HashObject(ctx context.Context, data []byte) (string, error) {
	out, err := r.run(ctx, runOpts{stdin: bytes.NewReader(data)}, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// MkTree writes a tree object from entries and returns its id.
func (r *Repo) MkTree(ctx context.Context, entries []TreeEntry) (string, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s %s\t%s\x00", e.Mode, e.Type, e.Hash, e.Name)
	}
	out, err := r.run(ctx, runOpts{stdin: &buf}, "mktree", "-z")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitTree writes a commit object for tree with the given parents.
func (r *Repo) CommitTree(ctx context.Context, tree, message string, parents ...string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		if p != "" {
			args = append(args, "-p", p)
		}
	}
	args = append(args, "-m", message)
	return r.Run(ctx, args...)
}

// UpdateRef points ref at commit.
func (r *Repo) UpdateRef(ctx context.Context, ref, commit string) error {
	_, err := r.Run(ctx, "update-ref", ref, commit)
	return err
}

// ResolveRef returns the commit ref points at. ok is false when the ref does
// not exist.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (commit string, ok bool, err error) {
	out, err := r.Run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// TreeOf returns the tree id of a commit.
func (r *Repo) TreeOf(ctx context.Context, commit string) (string, error) {
	return r.Run(ctx, "rev-parse", commit+"^{tree}")
}

// CommitTime returns the committer timestamp of commit in Unix seconds.
func (r *Repo) CommitTime(ctx context.Context, commit string) (int64, error) {
	out, err := r.Run(ctx, "log", "-1", "--format=%ct", commit)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(out, 10, 64)
}

// LsTree lists the entries of treeish, or of the given paths inside it.
func (r *Repo) LsTree(ctx context.Context, treeish string, paths ...string) ([]TreeEntry, error) {
	args := []string{"ls-tree", "-z", treeish}
	if len(paths) > 0 {
		args = append(args, paths...)
	}
	out, err := r.run(ctx, runOpts{}, args...)
	if err != nil {
		return nil, err
	}
	var entries []TreeEntry
	for _, rec := range strings.Split(string(out), "\x00") {
		if rec == "" {
			continue
		}
		meta, name, ok := strings.Cut(rec, "\t")
		if !ok {
			return nil, fmt.Errorf("gitrepo: malformed ls-tree record %q", rec)
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			return nil, fmt.Errorf("gitrepo: malformed ls-tree record %q", rec)
		}
		entries = append(entries, TreeEntry{Mode: fields[0], Type: fields[1], Hash: fields[2], Name: name})
	}
	return entries, nil
}

// CatBlobs reads the contents of the given objects in one cat-file process.
func (r *Repo) CatBlobs(ctx context.Context, hashes []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	var in bytes.Buffer
	for _, h := range hashes {
		in.WriteString(h)
		in.WriteByte('\n')
	}
	raw, err := r.run(ctx, runOpts{stdin: &in}, "cat-file", "--batch")
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(bytes.NewReader(raw))
	for range hashes {
		header, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("gitrepo: cat-file header: %w", err)
		}
		fields := strings.Fields(header)
		if len(fields) == 2 && fields[1] == "missing" {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("gitrepo: malformed cat-file header %q", header)
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("gitrepo: cat-file size: %w", err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("gitrepo: cat-file body: %w", err)
		}
		if _, err := br.Discard(1); err != nil {
			return nil, fmt.Errorf("gitrepo: cat-file body: %w", err)
		}
		out[fields[0]] = body
	}
	return out, nil
}
