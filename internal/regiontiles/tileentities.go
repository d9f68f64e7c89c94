package regiontiles

import (
	"fmt"

	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regiondoc"
	"github.com/stabilise/worldcore/internal/slice"
)

// TileEntityCodec encodes and decodes one tile-entity kind. The core never
// looks inside a tile-entity's payload; it only routes by Kind, so every
// kind a world actually uses must register one of these with the host
// process before load/save is ever invoked.
type TileEntityCodec interface {
	// Encode returns the opaque payload to persist for te. The returned map
	// must contain only gob-encodable primitives (see regiondoc's gob
	// registrations).
	Encode(te slice.TileEntity) (map[string]any, error)
	// Decode reconstructs a tile-entity from a previously-encoded payload.
	Decode(payload map[string]any) (slice.TileEntity, error)
}

// TileEntityStep is a loader.Step that round-trips tile-entities through a
// registry of per-kind codecs. A kind with no registered codec is skipped
// on save (reported to the onSkip callback if one is set, not as an error, so one unregistered mod's
// tile-entity doesn't fail the entire region's save) and reported as an
// error on load, since silently dropping persisted state on read is worse
// than failing loudly.
type TileEntityStep struct {
	codecs map[string]TileEntityCodec
	onSkip func(kind string)
}

// NewTileEntityStep returns a step with no codecs registered. Register
// every kind the world uses before the loader starts accepting work.
func NewTileEntityStep() *TileEntityStep {
	return &TileEntityStep{codecs: make(map[string]TileEntityCodec)}
}

// Register associates kind with the codec responsible for it. Bootstrap
// only; not safe to call once loads/saves have started.
func (t *TileEntityStep) Register(kind string, codec TileEntityCodec) {
	t.codecs[kind] = codec
}

// SetOnSkip registers a callback invoked whenever a save skips a
// tile-entity because its kind has no registered codec.
func (t *TileEntityStep) SetOnSkip(fn func(kind string)) { t.onSkip = fn }

func (t *TileEntityStep) Load(r *region.Region, doc *regiondoc.Document, wasGenerated bool) error {
	for _, ted := range doc.TileEntities {
		codec, ok := t.codecs[ted.Kind]
		if !ok {
			return fmt.Errorf("regiontiles: no tile-entity codec registered for kind %q", ted.Kind)
		}
		te, err := codec.Decode(ted.Payload)
		if err != nil {
			return fmt.Errorf("regiontiles: decode tile-entity kind %q at slice (%d,%d): %w", ted.Kind, ted.SX, ted.SY, err)
		}
		s := r.SliceAt(ted.SX, ted.SY)
		if s == nil {
			return fmt.Errorf("regiontiles: tile-entity kind %q references unpopulated slice (%d,%d)", ted.Kind, ted.SX, ted.SY)
		}
		s.SetTileEntityAt(ted.LocalX, ted.LocalY, te)
	}
	return nil
}

func (t *TileEntityStep) Save(r *region.Region, doc *regiondoc.Document, beingGenerated bool) error {
	var firstErr error
	for sy := 0; sy < region.Size; sy++ {
		for sx := 0; sx < region.Size; sx++ {
			s := r.SliceAt(sx, sy)
			if s == nil {
				continue
			}
			s.TileEntities(func(x, y int, te slice.TileEntity) {
				codec, ok := t.codecs[te.Kind()]
				if !ok {
					if t.onSkip != nil {
						t.onSkip(te.Kind())
					}
					return
				}
				payload, err := codec.Encode(te)
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("regiontiles: encode tile-entity kind %q at slice (%d,%d): %w", te.Kind(), sx, sy, err)
					}
					return
				}
				doc.TileEntities = append(doc.TileEntities, regiondoc.TileEntityDoc{
					SX: sx, SY: sy,
					LocalX: x, LocalY: y,
					Kind:    te.Kind(),
					Payload: payload,
				})
			})
		}
	}
	return firstErr
}
