package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/fieldflow/internal/codec"
	"github.com/roach88/fieldflow/internal/compiler"
	"github.com/roach88/fieldflow/internal/engine"
)

// LoadError represents an error that occurred while loading a pipeline.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No pipeline files found
	ErrCodeLoadFailed  = "E004" // Pipeline file could not be read or parsed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Pipeline did not build into a valid graph
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Store open/read/write error
)

// isCUEFile reports whether path is a CUE pipeline declaration rather
// than a serialized definition.
func isCUEFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cue")
}

// loadEngine builds an engine from a pipeline source. CUE files are
// compiled (name selects among several pipelines); .json, .yaml and .yml
// files are read as serialized definitions and validated on load.
func loadEngine(path, name string, opts ...engine.EngineOption) (*engine.Engine, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("pipeline file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing pipeline file: %v", err)}
	}

	if isCUEFile(path) {
		return compiler.CompileFile(path, name, opts...)
	}

	def, err := codec.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if name != "" && def.Name != name {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s holds pipeline %q, not %q", path, def.Name, name)}
	}
	return engine.FromDefinition(def, opts...)
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isCUEFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// classifyError maps any load, compile or engine error to a CLI error
// code and message.
func classifyError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Code, err.Error()
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		if code := engine.ErrorCode(err); code != "" {
			return code, compileErr.Error()
		}
		return ErrCodeLoadFailed, compileErr.Error()
	}
	if code := engine.ErrorCode(err); code != "" {
		return code, err.Error()
	}
	return ErrCodeGeneric, err.Error()
}
