package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by FaultyFS when a rule fires and carries no Err.
var ErrInjected = errors.New("injected fault")

// Fault describes which calls on a matching file fail.
type Fault struct {
	FailOnOpen     bool
	FailOnSeek     bool
	FailOnRead     bool
	FailOnWrite    bool
	FailAfterBytes int64 // fail writes that would take the file past this many bytes; zero disables
	FailOnSync     bool
	FailOnClose    bool
	FailOnRename   bool

	// Times limits how often the rule fires. Zero means every time.
	Times int
	Err   error
}

type rule struct {
	pattern string
	fault   Fault
	fired   int
}

// FaultyFS is a FileSystem wrapper that injects errors into files whose name
// contains a rule's pattern. The last matching rule wins.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules []*rule
}

// NewFaultyFS wraps fs, or Default when fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{FS: fs}
}

// AddRule registers a fault for file names containing pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{pattern: pattern, fault: fault})
}

// Reset drops all rules; subsequent calls pass through.
func (f *FaultyFS) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Fired reports how many times the rules for pattern have injected a failure.
func (f *FaultyFS) Fired(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rules {
		if r.pattern == pattern {
			n += r.fired
		}
	}
	return n
}

func (f *FaultyFS) match(name string) *rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out *rule
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			out = r
		}
	}
	return out
}

// fire reports whether r should fail a call that pred selects, consuming one
// firing when it does.
func (f *FaultyFS) fire(r *rule, pred func(Fault) bool) error {
	if r == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !pred(r.fault) {
		return nil
	}
	if r.fault.Times > 0 && r.fired >= r.fault.Times {
		return nil
	}
	r.fired++
	if r.fault.Err != nil {
		return r.fault.Err
	}
	return ErrInjected
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	r := f.match(name)
	if err := f.fire(r, func(ft Fault) bool { return ft.FailOnOpen }); err != nil {
		return nil, err
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, rule: r}, nil
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if err := f.fire(f.match(newpath), func(ft Fault) bool { return ft.FailOnRename }); err != nil {
		return err
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) Truncate(name string, size int64) error { return f.FS.Truncate(name, size) }

type faultyFile struct {
	File
	fs      *FaultyFS
	rule    *rule
	written int64
}

func (ff *faultyFile) Seek(offset int64, whence int) (int64, error) {
	if err := ff.fs.fire(ff.rule, func(ft Fault) bool { return ft.FailOnSeek }); err != nil {
		return 0, err
	}
	return ff.File.Seek(offset, whence)
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if err := ff.fs.fire(ff.rule, func(ft Fault) bool { return ft.FailOnRead }); err != nil {
		return 0, err
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	size := int64(len(p))
	err := ff.fs.fire(ff.rule, func(ft Fault) bool {
		if ft.FailOnWrite {
			return true
		}
		return ft.FailAfterBytes > 0 && ff.written+size > ft.FailAfterBytes
	})
	if err != nil {
		// Torn write: whatever fits under the limit reaches the file.
		if ff.rule != nil && !ff.rule.fault.FailOnWrite && ff.rule.fault.FailAfterBytes > ff.written {
			keep := ff.rule.fault.FailAfterBytes - ff.written
			n, _ := ff.File.Write(p[:keep])
			ff.written += int64(n)
			return n, err
		}
		return 0, err
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if err := ff.fs.fire(ff.rule, func(ft Fault) bool { return ft.FailOnSync }); err != nil {
		return err
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if err := ff.fs.fire(ff.rule, func(ft Fault) bool { return ft.FailOnClose }); err != nil {
		_ = ff.File.Close()
		return err
	}
	return ff.File.Close()
}
