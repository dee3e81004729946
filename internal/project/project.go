// Package project locates the polyq project root: the nearest directory at
// or above the working directory that holds polyq.ini. This lets commands
// run from any subdirectory of a project.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shipq/polyq/internal/config"
)

// ErrNotFound is returned when no project root can be found.
var ErrNotFound = errors.New("polyq project not found")

// Root contains information about a located project.
type Root struct {
	// Dir is the absolute path to the project root directory.
	Dir string

	// ConfigPath is the absolute path to polyq.ini.
	ConfigPath string
}

// FindRoot searches upward from startDir looking for polyq.ini.
// If startDir is empty, the current working directory is used.
//
// Returns (nil, false, nil) if nothing is found. Errors are only returned
// for filesystem failures.
func FindRoot(startDir string) (*Root, bool, error) {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, false, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for {
		configPath := filepath.Join(dir, config.ConfigFilename)
		info, err := os.Stat(configPath)
		if err == nil && !info.IsDir() {
			return &Root{Dir: dir, ConfigPath: configPath}, true, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("failed to check %s: %w", configPath, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, false, nil
		}
		dir = parent
	}
}

// Resolve returns the project root. A non-empty override must itself
// contain polyq.ini and is not searched upward from; otherwise the search
// starts at the current directory.
func Resolve(override string) (*Root, error) {
	if override == "" {
		root, found, err := FindRoot("")
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: no %s in this directory or any parent\n"+
				"  Hint: Run 'polyq init' to create one, or pass --dir",
				ErrNotFound, config.ConfigFilename)
		}
		return root, nil
	}

	dir, err := filepath.Abs(override)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("project path does not exist: %s", override)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path is not a directory: %s", override)
	}

	configPath := filepath.Join(dir, config.ConfigFilename)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s not found in %s\n"+
			"  Hint: Run 'polyq init' to create one",
			ErrNotFound, config.ConfigFilename, override)
	} else if err != nil {
		return nil, fmt.Errorf("failed to access config file: %w", err)
	}

	return &Root{Dir: dir, ConfigPath: configPath}, nil
}
