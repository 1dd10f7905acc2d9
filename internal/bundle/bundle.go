// Package bundle writes and reads the interchange bundle passed from the
// recovery point search to the recovery executors. A bundle is a zip file
// holding one RequiredFiles document per store, named <store>.json, and the
// chosen recovery point in ARTValue.json.
package bundle

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
	"github.com/restic/kvrecover/internal/selector"
)

// ARTFile is the name of the document holding the recovery point.
const ARTFile = "ARTValue.json"

const storeSuffix = ".json"

// modTime is used for all entries so that equal bundles are byte-identical.
var modTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Bundle is the decoded content of an interchange bundle.
type Bundle struct {
	ART    string
	Stores map[string]manifest.RequiredFiles
}

// Emit builds the bundle for a search result.
func Emit(res *selector.Result) *Bundle {
	return &Bundle{
		ART:    res.ART.Key,
		Stores: res.Stores(),
	}
}

// StoreNames returns the names of all stores in the bundle, sorted.
func (b *Bundle) StoreNames() []string {
	names := make([]string, 0, len(b.Stores))
	for name := range b.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validStoreName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && name+storeSuffix != ARTFile
}

func encodeART(art string) ([]byte, error) {
	buf, err := json.MarshalIndent(manifest.ARTRecord{ARTValue: art}, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(buf, '\n'), nil
}

// documents returns the file names and contents of the bundle, sorted by
// name.
func (b *Bundle) documents() ([]string, map[string][]byte, error) {
	if b.ART == "" {
		return nil, nil, errors.New("bundle has no recovery point")
	}

	docs := make(map[string][]byte, len(b.Stores)+1)
	names := []string{ARTFile}

	buf, err := encodeART(b.ART)
	if err != nil {
		return nil, nil, err
	}
	docs[ARTFile] = buf

	for _, store := range b.StoreNames() {
		if !validStoreName(store) {
			return nil, nil, errors.Errorf("invalid store name %q", store)
		}

		buf, err := b.Stores[store].Encode()
		if err != nil {
			return nil, nil, err
		}
		name := store + storeSuffix
		docs[name] = buf
		names = append(names, name)
	}

	sort.Strings(names)
	return names, docs, nil
}

// Marshal returns the bundle as a zip archive. Equal bundles produce
// byte-identical output.
func (b *Bundle) Marshal() ([]byte, error) {
	_, docs, err := b.documents()
	if err != nil {
		return nil, err
	}
	return MarshalZip(docs)
}

// MarshalZip returns a zip archive holding docs, keyed by file name. Entries
// are sorted by name and carry a fixed modification time.
func MarshalZip(docs map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modTime,
		}
		hdr.SetMode(0644)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := w.Write(docs[name]); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the bundle to target, replacing an existing file
// atomically.
func (b *Bundle) WriteFile(target string) error {
	buf, err := b.Marshal()
	if err != nil {
		return err
	}

	if err := WriteAtomic(target, buf); err != nil {
		return err
	}

	debug.Log("wrote bundle with %d stores, ART %v to %v", len(b.Stores), b.ART, target)
	return nil
}

// WriteAtomic writes buf to a temporary file next to target and renames it
// to target afterwards.
func WriteAtomic(target string, buf []byte) error {
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-tmp-")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := f.Name()

	cleanup := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}

	if _, err := f.Write(buf); err != nil {
		return cleanup(err)
	}
	if err := f.Sync(); err != nil {
		return cleanup(err)
	}
	if err := f.Chmod(0644); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}
	return nil
}

func (b *Bundle) add(name string, rd io.Reader) error {
	buf, err := io.ReadAll(rd)
	if err != nil {
		return errors.Wrapf(err, "read %v", name)
	}

	if name == ARTFile {
		var art manifest.ARTRecord
		if err := json.Unmarshal(buf, &art); err != nil {
			return errors.Wrapf(err, "decode %v", name)
		}
		if art.ARTValue == "" {
			return errors.Errorf("%v holds no recovery point", name)
		}
		b.ART = art.ARTValue
		return nil
	}

	rf, err := manifest.DecodeRequiredFiles(buf)
	if err != nil {
		return errors.Wrapf(err, "%v", name)
	}
	b.Stores[strings.TrimSuffix(name, storeSuffix)] = rf
	return nil
}

func (b *Bundle) check(src string) error {
	if b.ART == "" {
		return errors.Configuration("%v: %v is missing", src, ARTFile)
	}
	if len(b.Stores) == 0 {
		return errors.Configuration("%v: no store documents found", src)
	}
	return nil
}

func isDocument(name string) bool {
	if name == ARTFile {
		return true
	}
	return strings.HasSuffix(name, storeSuffix) && validStoreName(strings.TrimSuffix(name, storeSuffix))
}

// ReadFile reads a bundle from a zip file.
func ReadFile(filename string) (*Bundle, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errors.Configuration("open bundle %v: %v", filename, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	b := &Bundle{Stores: make(map[string]manifest.RequiredFiles)}
	for _, f := range zr.File {
		if !isDocument(f.Name) {
			debug.Log("ignoring %v in %v", f.Name, filename)
			continue
		}

		rd, err := f.Open()
		if err != nil {
			return nil, errors.Configuration("open %v in %v: %v", f.Name, filename, err)
		}
		err = b.add(f.Name, rd)
		_ = rd.Close()
		if err != nil {
			return nil, errors.Configuration("bundle %v: %v", filename, err)
		}
	}

	if err := b.check(filename); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadDir reads a bundle extracted into dir.
func ReadDir(dir string) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Configuration("read bundle directory: %v", err)
	}

	b := &Bundle{Stores: make(map[string]manifest.RequiredFiles)}
	for _, e := range entries {
		if !e.Type().IsRegular() || !isDocument(e.Name()) {
			continue
		}

		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Configuration("read bundle directory: %v", err)
		}
		err = b.add(e.Name(), f)
		_ = f.Close()
		if err != nil {
			return nil, errors.Configuration("bundle directory %v: %v", dir, err)
		}
	}

	if err := b.check(dir); err != nil {
		return nil, err
	}
	return b, nil
}

// Open reads a bundle from either a zip file or a directory holding the
// extracted documents.
func Open(name string) (*Bundle, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, errors.Configuration("open bundle: %v", err)
	}
	if fi.IsDir() {
		return ReadDir(name)
	}
	return ReadFile(name)
}

// ReadStoreFile reads a single RequiredFiles document.
func ReadStoreFile(filename string) (manifest.RequiredFiles, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Configuration("read manifest: %v", err)
	}

	rf, err := manifest.DecodeRequiredFiles(buf)
	if err != nil {
		return nil, errors.Configuration("%v: %v", filename, err)
	}
	return rf, nil
}

// Extract unpacks the bundle zip file into dir, which is created if needed.
func Extract(filename, dir string) error {
	b, err := ReadFile(filename)
	if err != nil {
		return err
	}

	names, docs, err := b.documents()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WithStack(err)
	}

	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), docs[name], 0644)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
