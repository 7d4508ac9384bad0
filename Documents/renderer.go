package Documents

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/template/html"
	"github.com/google/uuid"
)

// Renderer turns an HTML template plus data into a stored document file.
// PDF conversion, if any, happens downstream; this system only promises a
// stored path.
type Renderer struct {
	engine *html.Engine
	outDir string
}

// NewRenderer loads the template directory eagerly so a broken template
// fails at startup, not on the first invoice.
func NewRenderer(templatesDir, outDir string) (*Renderer, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	engine := html.New(templatesDir, ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return &Renderer{engine: engine, outDir: outDir}, nil
}

// Render writes the named template with the given data to a new file
// under the output directory and returns its path.
func (r *Renderer) Render(template string, data interface{}) (string, error) {
	name := fmt.Sprintf("%s-%s.html", template, uuid.NewString())
	path := filepath.Join(r.outDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	defer f.Close()

	if err := r.engine.Render(f, template, data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("render %s: %w", template, err)
	}
	return path, nil
}
