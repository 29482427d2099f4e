package problem

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrBuiltinNotFound is returned when the built-in library cannot be located.
var ErrBuiltinNotFound = errors.New("builtin problem not found")

// Names of the reserved relations every built-in library must declare.
const (
	ExistsRelation = "exists"
	EqualsRelation = "equals"
)

//go:embed builtin.yaml
var builtinSource []byte

// LibraryResolver locates the built-in library merged into every model.
type LibraryResolver interface {
	BuiltinLibrary() (*Problem, error)
}

// EmbeddedLibrary resolves the library compiled into the binary.
type EmbeddedLibrary struct{}

var (
	embeddedOnce sync.Once
	embedded     *Problem
	embeddedErr  error
)

// BuiltinLibrary implements LibraryResolver. The result is parsed once and shared;
// callers must treat it as read-only.
func (EmbeddedLibrary) BuiltinLibrary() (*Problem, error) {
	embeddedOnce.Do(func() {
		embedded, embeddedErr = Parse(builtinSource)
	})
	if embeddedErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuiltinNotFound, embeddedErr)
	}
	return embedded, nil
}

// FileLibrary resolves the library from a YAML file, once.
type FileLibrary struct {
	Path string

	once sync.Once
	lib  *Problem
	err  error
}

// BuiltinLibrary implements LibraryResolver.
func (f *FileLibrary) BuiltinLibrary() (*Problem, error) {
	f.once.Do(func() {
		if _, err := os.Stat(f.Path); err != nil {
			f.err = fmt.Errorf("%w: %v", ErrBuiltinNotFound, err)
			return
		}
		f.lib, f.err = Load(f.Path)
	})
	return f.lib, f.err
}

// StaticLibrary resolves to a fixed problem. A nil problem is not found.
type StaticLibrary struct {
	Problem *Problem
}

// BuiltinLibrary implements LibraryResolver.
func (s StaticLibrary) BuiltinLibrary() (*Problem, error) {
	if s.Problem == nil {
		return nil, ErrBuiltinNotFound
	}
	return s.Problem, nil
}
