package overlay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/valri11/planoverlay/slippymath"
)

// SourceType identifies the raster-source kind to the host map.
const SourceType = "canvas-overlay"

var (
	ErrInvalidConfig = errors.New("invalid overlay config")

	validate = validator.New()
)

// Padding holds fractions of the anchor box trimmed from each side.
// Left and Right are fractions of the box width, Top and Bottom of its
// height.
type Padding struct {
	Left   float64 `mapstructure:"left" json:"left"`
	Right  float64 `mapstructure:"right" json:"right"`
	Top    float64 `mapstructure:"top" json:"top"`
	Bottom float64 `mapstructure:"bottom" json:"bottom"`
}

// UniformPadding applies f to all four sides.
func UniformPadding(f float64) Padding {
	return Padding{Left: f, Right: f, Top: f, Bottom: f}
}

// UnmarshalJSON accepts either a single number or a per-side object.
func (p *Padding) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*p = UniformPadding(f)
		return nil
	}

	type sides Padding
	var s sides
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("padding: %w", err)
	}
	*p = Padding(s)
	return nil
}

// Config describes one image overlay. Zero fields are replaced by the
// defaults in the struct tags.
type Config struct {
	ID string `default:"canvas-layer-id" validate:"required"`

	// AnchorPolygon is the geographic footprint of the image as
	// lon/lat pairs. Only its bounding box is used.
	AnchorPolygon []orb.Point `validate:"min=1"`

	Image ImageRef `validate:"-"`

	// RotationDegrees rotates the image about the center of its padded
	// destination box.
	RotationDegrees float64

	Padding Padding

	// TileSize is the logical tile edge in projection pixels.
	TileSize int `default:"256" validate:"gt=0"`

	// RenderSize is the physical canvas edge tiles are drawn at.
	RenderSize int `default:"1024" validate:"gt=0"`

	// ZIndex is passed through to the host layer. Nil means 2010.
	ZIndex *int `default:"2010"`

	Projection slippymath.ProjectionModel `default:"ellipsoidal" validate:"oneof=spherical ellipsoidal"`

	Debug bool
}

// applyDefaults fills zero fields and validates the result.
func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if missingImage(c.Image) {
		return fmt.Errorf("%w: image is required", ErrInvalidConfig)
	}
	return nil
}

// missingImage reports refs that leave tiles nothing to wait on.
func missingImage(ref ImageRef) bool {
	switch r := ref.(type) {
	case nil:
		return true
	case ImageURL:
		return r == ""
	case Bitmap:
		return r.Image == nil
	case *Bitmap:
		return r == nil || r.Image == nil
	case Pending:
		return r.Future == nil
	case *Pending:
		return r == nil || r.Future == nil
	}
	return false
}

// Patch is a partial configuration update. Nil fields are left as they
// are.
type Patch struct {
	Image           ImageRef
	AnchorPolygon   []orb.Point
	Padding         *Padding
	RotationDegrees *float64
	Projection      *slippymath.ProjectionModel
	Debug           *bool

	// TileSize changes the echoed Size and also the tile grid the box
	// cache and drawing use.
	TileSize   *int
	RenderSize *int
}

func clonePoints(pts []orb.Point) []orb.Point {
	if pts == nil {
		return nil
	}
	out := make([]orb.Point, len(pts))
	copy(out, pts)
	return out
}
