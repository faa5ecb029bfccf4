// Package loader resolves template identifiers to source text. A loader
// reports a stable unique id and a change timestamp for a template so the
// compiled-unit cache can decide whether to recompile.
package loader

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/encoding/htmlindex"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

// Loader resolves templates.
type Loader interface {
	// Stat returns a unique id for the template and its change timestamp.
	Stat(id, root string) (uid string, timestamp int64, err error)
	// Load returns the source for a uid previously returned by Stat.
	Load(uid string) (string, error)
}

// FileLoader reads templates from the local file system. The timestamp is
// the modification time in whole seconds.
type FileLoader struct{}

// Stat implements Loader.
func (FileLoader) Stat(id, root string) (string, int64, error) {
	uid := filepath.Join(root, filepath.FromSlash(id))
	info, err := os.Stat(uid)
	if err != nil {
		return "", 0, statError(id, err)
	}
	if info.IsDir() {
		return "", 0, berrors.NewTemplateNotFound(id, errors.New("is a directory"))
	}
	return uid, info.ModTime().Unix(), nil
}

// Load implements Loader.
func (FileLoader) Load(uid string) (string, error) {
	data, err := os.ReadFile(uid)
	if err != nil {
		return "", statError(uid, err)
	}
	return Decode(uid, data)
}

// PathLoader searches several directories in order and uses the first that
// holds the template. The root passed to Stat is ignored.
type PathLoader struct {
	Paths []string
}

// NewPathLoader creates a loader over paths.
func NewPathLoader(paths ...string) *PathLoader {
	return &PathLoader{Paths: paths}
}

// Stat implements Loader.
func (p *PathLoader) Stat(id, _ string) (string, int64, error) {
	for _, dir := range p.Paths {
		uid, ts, err := (FileLoader{}).Stat(id, dir)
		if err == nil {
			return uid, ts, nil
		}
		if !berrors.IsTemplateNotFound(err) {
			return "", 0, err
		}
	}
	return "", 0, berrors.NewTemplateNotFound(id, nil).WithContext("paths", p.Paths)
}

// Load implements Loader.
func (p *PathLoader) Load(uid string) (string, error) {
	return FileLoader{}.Load(uid)
}

// FSLoader reads templates from an fs.FS such as an embed.FS. The file
// system carries no usable modification times, so every template reports
// timestamp zero and is compiled once. Loaders built with NewFSLoader
// report uids unique to the instance; a bare FSLoader literal reports the
// plain path.
type FSLoader struct {
	FS     fs.FS
	prefix string
}

// NewFSLoader creates a loader over fsys.
func NewFSLoader(fsys fs.FS) FSLoader {
	return FSLoader{FS: fsys, prefix: instancePrefix("fs")}
}

// Stat implements Loader.
func (l FSLoader) Stat(id, root string) (string, int64, error) {
	name := path.Join(root, id)
	info, err := fs.Stat(l.FS, name)
	if err != nil {
		return "", 0, statError(id, err)
	}
	if info.IsDir() {
		return "", 0, berrors.NewTemplateNotFound(id, errors.New("is a directory"))
	}
	return l.prefix + name, 0, nil
}

// Load implements Loader.
func (l FSLoader) Load(uid string) (string, error) {
	name, ok := strings.CutPrefix(uid, l.prefix)
	if !ok {
		return "", berrors.NewTemplateNotFound(uid, nil)
	}
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return "", statError(uid, err)
	}
	return Decode(uid, data)
}

// MapLoader serves templates from memory. Every Set bumps the template's
// timestamp so cached compilations are replaced. Uids carry a prefix unique
// to the loader, so two loaders holding the same id never share a cached
// unit.
type MapLoader struct {
	mu      sync.RWMutex
	once    sync.Once
	prefix  string
	clock   int64
	sources map[string]mapEntry
}

type mapEntry struct {
	src string
	ts  int64
}

// NewMapLoader creates a loader holding sources.
func NewMapLoader(sources map[string]string) *MapLoader {
	m := &MapLoader{sources: make(map[string]mapEntry, len(sources))}
	for id, src := range sources {
		m.Set(id, src)
	}
	return m
}

func (m *MapLoader) uidPrefix() string {
	m.once.Do(func() { m.prefix = instancePrefix("mem") })
	return m.prefix
}

// Set stores or replaces the source for id.
func (m *MapLoader) Set(id, src string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sources == nil {
		m.sources = make(map[string]mapEntry)
	}
	m.clock++
	m.sources[id] = mapEntry{src: src, ts: m.clock}
}

// Delete removes id.
func (m *MapLoader) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
}

// Stat implements Loader. The root is ignored; ids are matched verbatim.
func (m *MapLoader) Stat(id, _ string) (string, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sources[id]
	if !ok {
		return "", 0, berrors.NewTemplateNotFound(id, nil)
	}
	return m.uidPrefix() + id, e.ts, nil
}

// Load implements Loader.
func (m *MapLoader) Load(uid string) (string, error) {
	id, ok := strings.CutPrefix(uid, m.uidPrefix())
	if !ok {
		return "", berrors.NewTemplateNotFound(uid, nil)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sources[id]
	if !ok {
		return "", berrors.NewTemplateNotFound(uid, nil)
	}
	return e.src, nil
}

var instances atomic.Int64

// instancePrefix returns a uid prefix no other loader instance uses.
func instancePrefix(kind string) string {
	return kind + ":" + strconv.FormatInt(instances.Add(1), 10) + "/"
}

func statError(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return berrors.NewTemplateNotFound(id, err)
	}
	return berrors.NewLoaderError(id, "cannot read template", err)
}

var codingDecl = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)

// Decode converts template source to UTF-8. A charset may be declared in a
// comment on either of the first two lines, as in "# coding: latin1" or
// "# -*- coding: windows-1252 -*-". Undeclared sources are taken as UTF-8.
func Decode(uid string, data []byte) (string, error) {
	name := declaredCharset(data)
	if name == "" {
		return string(data), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", berrors.NewLoaderError(uid, "unknown source encoding "+name, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", berrors.NewLoaderError(uid, "cannot decode source as "+name, err)
	}
	return string(out), nil
}

func declaredCharset(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for i := 0; i < 2 && sc.Scan(); i++ {
		if m := codingDecl.FindSubmatch(sc.Bytes()); m != nil {
			return string(m[1])
		}
	}
	return ""
}
