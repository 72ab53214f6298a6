package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dhcgn/pst-viewer/model"
)

// ErrUnknownStrategy is returned by StrategyByName for unregistered names.
var ErrUnknownStrategy = errors.New("unknown export format")

// Strategy writes a message in one file format.
type Strategy interface {
	Name() string
	Extension() string
	Export(w io.Writer, msg model.Message) error
}

type emlStrategy struct{}

func (emlStrategy) Name() string      { return "eml" }
func (emlStrategy) Extension() string { return ".eml" }
func (emlStrategy) Export(w io.Writer, msg model.Message) error {
	return WriteEML(w, msg)
}

type textStrategy struct{}

func (textStrategy) Name() string      { return "txt" }
func (textStrategy) Extension() string { return ".txt" }
func (textStrategy) Export(w io.Writer, msg model.Message) error {
	_, err := io.WriteString(w, BuildText(msg))
	return err
}

// EML is the RFC 5322 export strategy.
var EML Strategy = emlStrategy{}

// Strategies returns all export strategies.
func Strategies() []Strategy {
	return []Strategy{EML, textStrategy{}}
}

// StrategyByName returns the export strategy with the given name.
func StrategyByName(name string) (Strategy, error) {
	for _, s := range Strategies() {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// WriteFile exports msg to path, creating parent directories as needed.
func WriteFile(path string, s Strategy, msg model.Message) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.Export(f, msg); err != nil {
		_ = f.Close()
		return fmt.Errorf("export %s: %w", s.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
