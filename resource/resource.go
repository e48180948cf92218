// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package resource maps request paths onto files under a document root.
package resource

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// IndexFile is served in place of a directory.
const IndexFile = "index.html"

var (
	// ErrNotFound is returned when nothing exists at the resolved path.
	ErrNotFound = errors.New("resource: not found")

	// ErrOutsideRoot is returned for paths which could name a file
	// outside of the document root.
	ErrOutsideRoot = errors.New("resource: path escapes document root")
)

// Resource is a file located under the document root.
type Resource struct {
	Path        string
	IsDirectory bool

	// Executable is set when any execute bit is set on the file.
	Executable bool
}

// StatError wraps a failed stat of the resolved path.
type StatError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e StatError) Error() string {
	return fmt.Sprintf("failed to stat %s: %s", e.Path, e.Cause)
}

// Unwrap reports the error as ErrNotFound as well as its underlying cause.
func (e StatError) Unwrap() []error {
	return []error{ErrNotFound, e.Cause}
}

// Resolve joins root and path into a file system path.
//
// A path ending in '/' names the directory's index file. A path which
// resolves to a directory has "/index.html" appended and is checked
// again, so "dir/" whose index.html is itself a directory resolves to
// "dir/index.html/index.html".
func Resolve(root, path string) (Resource, error) {
	if !contained(path) {
		return Resource{}, ErrOutsideRoot
	}

	fsPath := root + path
	if strings.HasSuffix(fsPath, "/") {
		fsPath += IndexFile
	}

	info, err := os.Stat(fsPath)
	if err != nil {
		return Resource{}, StatError{Path: fsPath, Cause: err}
	}

	if info.IsDir() {
		fsPath += "/" + IndexFile
		info, err = os.Stat(fsPath)
		if err != nil {
			return Resource{}, StatError{Path: fsPath, Cause: err}
		}
	}

	return Resource{
		Path:        fsPath,
		IsDirectory: info.IsDir(),
		Executable:  info.Mode().Perm()&0o111 != 0,
	}, nil
}

func contained(path string) bool {
	if path == "" {
		return true
	}
	if path[0] != '/' {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
