// Package report renders the HTML pages and LaTeX tables that summarise the
// experiments.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("report").Funcs(template.FuncMap{
	"num": formatNullable,
}).ParseFS(templateFS, "templates/*.html"))

// formatNullable prints a stored error as is, and None for a missing one.
func formatNullable(v *float64) string {
	if v == nil {
		return "None"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func render(w io.Writer, name string, data any) error {
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

// WriteFile creates path and fills it with render.
func WriteFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// File names of the generated pages, relative to the tables directory.
func ConfigurationsFile(key models.ExperimentKey) string { return key.Name() + ".html" }
func TopConfigurationsFile(dataset string) string      { return "top_" + dataset + ".html" }
func StrategiesFile(dataset string) string             { return dataset + ".html" }

const (
	IndexFile          = "index.html"
	IndexMinMaxFile    = "index_latex.html"
	IndexBootstrapFile = "index_bootstrap.html"
)

// IndexPage lists every dataset with a link to its strategies page.
func IndexPage(w io.Writer, datasets []string) error {
	return render(w, "index.html", datasets)
}
