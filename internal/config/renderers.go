package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chartgen/internal/ir"
	"github.com/roach88/chartgen/internal/render"
)

//go:embed schema.cue
var schemaCUE string

// RendererSpec configures the external renderer of one kind.
type RendererSpec struct {
	Command []string `json:"command"`
	Ext     string   `json:"ext"`
}

// Renderers maps each kind to its renderer.
type Renderers map[ir.Kind]RendererSpec

// DefaultRenderers returns the renderer commands used when no
// configuration file is given.
func DefaultRenderers() Renderers {
	return Renderers{
		ir.KindPieChart: {
			Command: []string{"bat-generate-piechart.py", "-i", render.PlaceholderPayload, "-o", render.PlaceholderOutput},
			Ext:     render.DefaultExt,
		},
		ir.KindVersion: {
			Command: []string{"bat-generate-version-chart.py", "-i", render.PlaceholderPayload, "-o", render.PlaceholderOutput},
			Ext:     render.DefaultExt,
		},
	}
}

// Registry builds a command renderer per kind.
func (r Renderers) Registry() render.Registry {
	reg := make(render.Registry, len(r))
	for kind, spec := range r {
		reg[kind] = &render.CommandRenderer{Command: spec.Command, Ext: spec.Ext}
	}
	return reg
}

// LoadRenderers reads a CUE renderer configuration file. An empty path
// returns DefaultRenderers.
func LoadRenderers(path string) (Renderers, error) {
	if path == "" {
		return DefaultRenderers(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read renderer config: %w", err)
	}
	return ParseRenderers(src, path)
}

// ParseRenderers validates src against the embedded schema. Kinds not
// configured in src keep their default renderer.
//
// Example:
//
//	renderers: version: {
//		command: ["render-table", "--in", "{payload}", "--out", "{output}"]
//		ext:     "svg"
//	}
func ParseRenderers(src []byte, filename string) (Renderers, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile renderer schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var decoded struct {
		Renderers map[string]RendererSpec `json:"renderers"`
	}
	if err := unified.Decode(&decoded); err != nil {
		return nil, formatCUEError(err)
	}

	out := DefaultRenderers()
	for name, spec := range decoded.Renderers {
		out[ir.Kind(name)] = spec
	}
	return out, nil
}

// ConfigError is a renderer configuration error with its CUE position.
type ConfigError struct {
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError reduces a CUE error list to its first error, keeping the
// source position when there is one.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &ConfigError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
