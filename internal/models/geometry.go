package models

import "maunium.net/go/mautrix/id"

// atBottomTolerance absorbs subpixel rounding.
const atBottomTolerance = 1

// Extent is a tile's vertical span in content coordinates. Bottom is the
// coordinate of the tile's lowest edge.
type Extent struct {
	Top    int
	Bottom int
}

// Geometry is supplied by the rendering surface after each layout.
type Geometry struct {
	ScrollTop      int
	ViewportHeight int
	ContentHeight  int
	Extents        map[id.EventID]Extent
}

// AtBottom reports whether the viewport shows the end of the content.
func (g Geometry) AtBottom() bool {
	return g.ContentHeight-g.ScrollTop <= g.ViewportHeight+atBottomTolerance
}

// NearTop reports whether the scroll top is within one viewport of the content start.
func (g Geometry) NearTop() bool {
	return g.ScrollTop < g.ViewportHeight
}

// ViewportBottom is the content coordinate of the viewport's bottom edge.
func (g Geometry) ViewportBottom() int {
	return g.ScrollTop + g.ViewportHeight
}

// Measured reports whether any tile geometry is known.
func (g Geometry) Measured() bool {
	return len(g.Extents) > 0
}
