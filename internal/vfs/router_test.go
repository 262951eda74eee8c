package vfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newLocalMount(t *testing.T, name string) *Local {
	t.Helper()

	fs, err := NewLocal(LocalOptions{Root: filepath.Join(t.TempDir(), name), Name: name})
	if err != nil {
		t.Fatalf("new local %s: %v", name, err)
	}
	if err := fs.Init(context.Background()); err != nil {
		t.Fatalf("init local %s: %v", name, err)
	}
	return fs
}

func newTestRouter(t *testing.T, mounts []Mount) *Router {
	t.Helper()

	r, err := NewRouter(mounts, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"//", "/"},
		{"/data", "/data"},
		{"/data/", "/data"},
		{"//data///archive//", "/data/archive"},
		{"data/archive", "/data/archive"},
		{"/data/./archive", "/data/archive"},
	}
	for _, tc := range cases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveLongestPrefixWins(t *testing.T) {
	t.Parallel()

	outer := newLocalMount(t, "outer")
	inner := newLocalMount(t, "inner")
	r := newTestRouter(t, []Mount{
		{Path: "/a", FS: outer},
		{Path: "/a/b", FS: inner},
	})

	fs, rel, err := r.Resolve("/a/b/c")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if fs != FileSystem(inner) {
		t.Fatal("resolution picked the shorter mount")
	}
	if rel != "/c" {
		t.Fatalf("remainder = %q, want /c", rel)
	}

	fs, rel, err = r.Resolve("/a/bc")
	if err != nil {
		t.Fatalf("resolve /a/bc: %v", err)
	}
	if fs != FileSystem(outer) {
		t.Fatal("/a/bc must resolve to /a, not /a/b")
	}
	if rel != "/bc" {
		t.Fatalf("remainder = %q, want /bc", rel)
	}
}

func TestResolveExactMountPathMapsToBackendRoot(t *testing.T) {
	t.Parallel()

	data := newLocalMount(t, "data")
	r := newTestRouter(t, []Mount{{Path: "/data", FS: data}})

	_, rel, err := r.Resolve("/data/")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rel != "/" {
		t.Fatalf("remainder = %q, want /", rel)
	}
}

func TestResolveOutsideNamespaceFails(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, []Mount{{Path: "/data", FS: newLocalMount(t, "data")}})

	_, _, err := r.Resolve("/elsewhere/file.txt")
	if !errors.Is(err, ErrNoMount) {
		t.Fatalf("err = %v, want ErrNoMount", err)
	}
}

func TestListRootSynthesizesMountEntries(t *testing.T) {
	t.Parallel()

	data := newLocalMount(t, "data")
	s3ish := newLocalMount(t, "remote-cache")
	r := newTestRouter(t, []Mount{
		{Path: "/data", FS: data},
		{Path: "/s3", FS: s3ish},
	})

	entries, err := r.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("list /: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Name != "data" || entries[1].Name != "s3" {
		t.Fatalf("entries = %q, %q; want data, s3", entries[0].Name, entries[1].Name)
	}
	for _, e := range entries {
		if !e.IsDir {
			t.Fatalf("entry %q is not a directory", e.Name)
		}
		if e.Mount == nil {
			t.Fatalf("mount-root entry %q carries no provider metadata", e.Name)
		}
		if e.Mount.Provider != "local" {
			t.Fatalf("entry %q provider = %q", e.Name, e.Mount.Provider)
		}
	}
	if entries[0].Mount.Name != "data" {
		t.Fatalf("display name = %q, want data", entries[0].Mount.Name)
	}
}

func TestListIntermediateVirtualSegmentHasNoMountMetadata(t *testing.T) {
	t.Parallel()

	deep := newLocalMount(t, "deep")
	r := newTestRouter(t, []Mount{{Path: "/data/archive/cold", FS: deep}})

	entries, err := r.List(context.Background(), "/data")
	if err != nil {
		t.Fatalf("list /data: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "archive" {
		t.Fatalf("entries = %+v, want single archive entry", entries)
	}
	if entries[0].Mount != nil {
		t.Fatal("intermediate virtual segment carries mount metadata")
	}
}

func TestListVirtualEntriesDeduplicated(t *testing.T) {
	t.Parallel()

	a := newLocalMount(t, "a")
	b := newLocalMount(t, "b")
	r := newTestRouter(t, []Mount{
		{Path: "/data/a", FS: a},
		{Path: "/data/b", FS: b},
		{Path: "/data", FS: newLocalMount(t, "data")},
	})

	// /data resolves to a real mount, so listing delegates to it rather
	// than synthesizing entries for the nested mounts.
	entries, err := r.List(context.Background(), "/data")
	if err != nil {
		t.Fatalf("list /data: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty backing directory listing, got %+v", entries)
	}

	// The root, which no mount claims, synthesizes exactly one entry.
	rootEntries, err := r.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("list /: %v", err)
	}
	if len(rootEntries) != 1 || rootEntries[0].Name != "data" {
		t.Fatalf("root entries = %+v, want single data entry", rootEntries)
	}
}

func TestStatVirtualDirectory(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, []Mount{{Path: "/data/archive", FS: newLocalMount(t, "archive")}})

	info, err := r.Stat(context.Background(), "/data")
	if err != nil {
		t.Fatalf("stat virtual dir: %v", err)
	}
	if !info.IsDir {
		t.Fatal("virtual path is not a directory")
	}
	if info.Size != 0 {
		t.Fatalf("virtual directory size = %d, want 0", info.Size)
	}
	if info.Name != "data" {
		t.Fatalf("name = %q, want data", info.Name)
	}

	if _, err := r.Stat(context.Background(), "/nope"); !errors.Is(err, ErrNoMount) {
		t.Fatalf("stat outside namespace err = %v, want ErrNoMount", err)
	}
}

func TestReadWriteThroughRouter(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, []Mount{{Path: "/data", FS: newLocalMount(t, "data")}})
	ctx := context.Background()

	payload := []byte("hello workyard")
	if err := r.WriteFile(ctx, "/data/notes/hello.txt", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := r.ReadFile(ctx, "/data//notes/hello.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read %q, want %q", got, payload)
	}
}

func TestCrossMountCopyPreservesSource(t *testing.T) {
	t.Parallel()

	src := newLocalMount(t, "src")
	dst := newLocalMount(t, "dst")
	r := newTestRouter(t, []Mount{
		{Path: "/src", FS: src},
		{Path: "/dst", FS: dst},
	})
	ctx := context.Background()

	payload := []byte("bytes that must survive the trip")
	if err := r.WriteFile(ctx, "/src/file.bin", payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Copy(ctx, "/src/file.bin", "/dst/file.bin"); err != nil {
		t.Fatalf("copy: %v", err)
	}

	srcBytes, err := r.ReadFile(ctx, "/src/file.bin")
	if err != nil {
		t.Fatalf("source disappeared after copy: %v", err)
	}
	dstBytes, err := r.ReadFile(ctx, "/dst/file.bin")
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(srcBytes, payload) || !bytes.Equal(dstBytes, payload) {
		t.Fatal("copied bytes differ from source bytes")
	}
}

func TestCrossMountMoveRemovesSource(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, []Mount{
		{Path: "/src", FS: newLocalMount(t, "src")},
		{Path: "/dst", FS: newLocalMount(t, "dst")},
	})
	ctx := context.Background()

	if err := r.WriteFile(ctx, "/src/file.txt", []byte("moving")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Move(ctx, "/src/file.txt", "/dst/moved.txt"); err != nil {
		t.Fatalf("move: %v", err)
	}

	if _, err := r.ReadFile(ctx, "/src/file.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source still present after move (err = %v)", err)
	}
	got, err := r.ReadFile(ctx, "/dst/moved.txt")
	if err != nil {
		t.Fatalf("read moved file: %v", err)
	}
	if string(got) != "moving" {
		t.Fatalf("moved bytes = %q", got)
	}
}

func TestSameMountMoveDelegatesNatively(t *testing.T) {
	t.Parallel()

	data := newLocalMount(t, "data")
	r := newTestRouter(t, []Mount{{Path: "/data", FS: data}})
	ctx := context.Background()

	if err := r.WriteFile(ctx, "/data/a.txt", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Move(ctx, "/data/a.txt", "/data/sub/b.txt"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := r.Stat(ctx, "/data/a.txt"); err == nil {
		t.Fatal("source still present after same-mount move")
	}
	if _, err := r.Stat(ctx, "/data/sub/b.txt"); err != nil {
		t.Fatalf("destination missing after move: %v", err)
	}
}

func TestRouterRejectsDuplicateMounts(t *testing.T) {
	t.Parallel()

	fs := newLocalMount(t, "data")
	_, err := NewRouter([]Mount{
		{Path: "/data", FS: fs},
		{Path: "/data/", FS: fs},
	}, nil)
	if err == nil {
		t.Fatal("router accepted duplicate mount paths")
	}
}

// failingFS wraps Local to make lifecycle passthrough failures observable.
type failingFS struct {
	*Local
}

func (f failingFS) Init(context.Context) error {
	return errors.New("backend offline")
}

func TestInitPassthroughJoinsFailures(t *testing.T) {
	t.Parallel()

	good := newLocalMount(t, "good")
	bad := failingFS{Local: newLocalMount(t, "bad")}
	r := newTestRouter(t, []Mount{
		{Path: "/good", FS: good},
		{Path: "/bad", FS: bad},
	})

	err := r.Init(context.Background())
	if err == nil {
		t.Fatal("router init swallowed a mount failure")
	}
	// The healthy mount must still work after the sibling failed.
	if err := r.WriteFile(context.Background(), "/good/ok.txt", []byte("ok")); err != nil {
		t.Fatalf("healthy mount unusable after init failure: %v", err)
	}
}
