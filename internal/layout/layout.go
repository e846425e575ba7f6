// Package layout encodes and decodes the persisted part of a workspace:
// drawings, indicator configs, compare symbols and scale preferences.
//
// Blobs are versioned JSON stored under "{symbol}/{timeframe}/layout@v{n}".
// Decode never fails. Anything it cannot use falls back to defaults and is
// reported alongside the result.
package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"chartdesk/internal/coord"
	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/scale"
	"chartdesk/internal/workspace"
)

// Version is the blob format written by Encode.
const Version = 1

var (
	ErrCorrupt         = errors.New("layout blob is not valid JSON")
	ErrVersionMismatch = errors.New("layout version mismatch")
	ErrBadCompare      = errors.New("compare entry without symbol")
	ErrBadScale        = errors.New("invalid scale preferences")
)

// Blob is the stored form.
type Blob struct {
	Version    int                `json:"version"`
	Drawings   []drawing.Object   `json:"drawings"`
	Indicators []indicator.Config `json:"indicators"`
	Compares   []model.SeriesKey  `json:"compares"`
	Scale      scale.Prefs        `json:"scale"`
}

// Result is a decoded layout plus every fallback taken while decoding it.
type Result struct {
	Layout    workspace.Layout
	Fallbacks []error
}

// Default is the layout of a fresh workspace.
func Default() workspace.Layout {
	return workspace.Layout{
		Drawings:   []drawing.Object{},
		Indicators: []indicator.Config{},
		Compares:   []model.SeriesKey{},
		Scale:      scale.Prefs{Mode: coord.Linear, AutoScale: true, BarSpacing: scale.DefaultBarSpacing},
	}
}

// Key returns the store key for a series at the current format version.
func Key(k model.SeriesKey) string { return k.LayoutKey(Version) }

// Encode serialises l at the current version.
func Encode(l workspace.Layout) ([]byte, error) {
	b := Blob{
		Version:    Version,
		Drawings:   l.Drawings,
		Indicators: l.Indicators,
		Compares:   l.Compares,
		Scale:      l.Scale,
	}
	if b.Drawings == nil {
		b.Drawings = []drawing.Object{}
	}
	if b.Indicators == nil {
		b.Indicators = []indicator.Config{}
	}
	if b.Compares == nil {
		b.Compares = []model.SeriesKey{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return data, nil
}

// Codec decodes blobs against an indicator registry.
type Codec struct {
	reg *indicator.Registry
	log *slog.Logger
}

// NewCodec returns a codec. A nil registry uses the built-in kinds.
func NewCodec(reg *indicator.Registry, log *slog.Logger) *Codec {
	if reg == nil {
		reg = indicator.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Codec{reg: reg, log: log.With("component", "layout")}
}

// Decode parses data. Empty input yields the default layout with no
// fallbacks. Corrupt JSON or a different version yields the default layout.
// Entries with unknown drawing types or indicator kinds are dropped
// individually; the rest of the blob is kept.
func (c *Codec) Decode(data []byte) Result {
	res := Result{Layout: Default()}
	if len(data) == 0 {
		return res
	}

	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		res.Fallbacks = append(res.Fallbacks, fmt.Errorf("%w: %v", ErrCorrupt, err))
		c.report(res.Fallbacks)
		return res
	}
	if b.Version != Version {
		res.Fallbacks = append(res.Fallbacks, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, b.Version, Version))
		c.report(res.Fallbacks)
		return res
	}

	for _, o := range b.Drawings {
		if !o.Type.Valid() {
			res.Fallbacks = append(res.Fallbacks, fmt.Errorf("drawing %s: %q: %w", o.ID, o.Type, drawing.ErrUnknownType))
			continue
		}
		if want := o.Type.Arity(); len(o.Points) != want {
			res.Fallbacks = append(res.Fallbacks, fmt.Errorf("drawing %s: %d points, want %d: %w", o.ID, len(o.Points), want, drawing.ErrBadPoint))
			continue
		}
		o.Selected = false
		res.Layout.Drawings = append(res.Layout.Drawings, o)
	}

	for _, cfg := range b.Indicators {
		norm, err := c.reg.Normalize(cfg.Kind, cfg.Inputs)
		if err != nil {
			res.Fallbacks = append(res.Fallbacks, fmt.Errorf("indicator %s: %w", cfg.ID, err))
			continue
		}
		cfg.Inputs = norm
		res.Layout.Indicators = append(res.Layout.Indicators, cfg)
	}

	seen := make(map[string]bool, len(b.Compares))
	for _, k := range b.Compares {
		if k.Symbol == "" {
			res.Fallbacks = append(res.Fallbacks, ErrBadCompare)
			continue
		}
		if seen[k.Symbol] {
			continue
		}
		seen[k.Symbol] = true
		res.Layout.Compares = append(res.Layout.Compares, k)
	}

	if b.Scale.Mode.Valid() && b.Scale.BarSpacing > 0 {
		res.Layout.Scale = b.Scale
	} else {
		res.Fallbacks = append(res.Fallbacks, fmt.Errorf("%w: mode %q spacing %v", ErrBadScale, b.Scale.Mode, b.Scale.BarSpacing))
	}

	c.report(res.Fallbacks)
	return res
}

func (c *Codec) report(fallbacks []error) {
	for _, err := range fallbacks {
		c.log.Warn("layout fallback", "error", err)
	}
}

// Save encodes l and writes it under the key of series k.
func Save(ctx context.Context, st model.LayoutStore, k model.SeriesKey, l workspace.Layout) error {
	data, err := Encode(l)
	if err != nil {
		return err
	}
	if err := st.SaveLayoutJSON(ctx, Key(k), data); err != nil {
		return fmt.Errorf("save layout %s: %w", Key(k), err)
	}
	return nil
}

// Load reads and decodes the layout of series k. found is false when the
// store has no entry. Store failures are returned; decoding never is.
func (c *Codec) Load(ctx context.Context, st model.LayoutStore, k model.SeriesKey) (res Result, found bool, err error) {
	data, err := st.ReadLayoutJSON(ctx, Key(k))
	if err != nil {
		return Result{Layout: Default()}, false, fmt.Errorf("read layout %s: %w", Key(k), err)
	}
	if data == nil {
		return Result{Layout: Default()}, false, nil
	}
	return c.Decode(data), true, nil
}
