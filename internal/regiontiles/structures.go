package regiontiles

import (
	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regiondoc"
)

// StructureCodec round-trips a region's queued-but-not-yet-implanted
// structures. Save reads the queue non-destructively: the tick thread's
// implant step is the queue's only consumer, so a concurrent autosave must
// never drain it, or the implant that runs after the save loses the
// structure it was about to place.
type StructureCodec struct{}

func (StructureCodec) Load(r *region.Region, doc *regiondoc.Document, wasGenerated bool) error {
	for _, sd := range doc.Structures {
		r.AddStructure(region.QueuedStructure{
			Name:    sd.Name,
			SliceX:  sd.SliceX,
			SliceY:  sd.SliceY,
			TileX:   sd.TileX,
			TileY:   sd.TileY,
			OffsetX: sd.OffsetX,
			OffsetY: sd.OffsetY,
		})
	}
	return nil
}

func (StructureCodec) Save(r *region.Region, doc *regiondoc.Document, beingGenerated bool) error {
	for _, s := range r.Structures() {
		doc.Structures = append(doc.Structures, regiondoc.StructureDoc{
			Name:    s.Name,
			SliceX:  s.SliceX,
			SliceY:  s.SliceY,
			TileX:   s.TileX,
			TileY:   s.TileY,
			OffsetX: s.OffsetX,
			OffsetY: s.OffsetY,
		})
	}
	return nil
}
