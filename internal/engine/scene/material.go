package scene

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrTextureData is returned when packed texture bytes do not cover the
// declared size.
var ErrTextureData = errors.New("texture data out of range")

// Material describes how a node's geometry is shaded.
type Material struct {
	Name string

	// Color is linear RGBA; Color[3] is the opacity.
	Color     [4]float32
	Shininess float32
	Specular  float32
	Emission  float32
	// Reflectance is non-zero for mirror-like surfaces such as the floor.
	Reflectance float32
	Reflective  bool

	Texture *Texture

	Transparent bool
	DepthWrite  bool
}

// NewMaterial returns an opaque material of the given color.
func NewMaterial(rgba [4]float32) *Material {
	return &Material{
		Color:       rgba,
		Specular:    0.5,
		Shininess:   0.5,
		Transparent: rgba[3] < 1,
		DepthWrite:  true,
	}
}

// Opacity returns the alpha component.
func (m *Material) Opacity() float32 {
	return m.Color[3]
}

// Clone returns a copy that can be mutated without touching m. The texture
// is shared.
func (m *Material) Clone() *Material {
	c := *m
	return &c
}

// Texture is a decoded RGBA image referenced by materials.
type Texture struct {
	// ID is the model texture index.
	ID    int
	Image *image.RGBA
}

// DecodeTexture expands packed 1, 3 or 4 channel bytes into RGBA.
func DecodeTexture(id, width, height, channels int, data []byte) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: texture %d has size %dx%d", ErrTextureData, id, width, height)
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: texture %d has %d channels", ErrTextureData, id, channels)
	}
	if len(data) < width*height*channels {
		return nil, fmt.Errorf("%w: texture %d needs %d bytes, have %d",
			ErrTextureData, id, width*height*channels, len(data))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := data[(y*width+x)*channels:]
			var c color.RGBA
			switch channels {
			case 1:
				c = color.RGBA{src[0], src[0], src[0], 255}
			case 3:
				c = color.RGBA{src[0], src[1], src[2], 255}
			case 4:
				c = color.RGBA{src[0], src[1], src[2], src[3]}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return &Texture{ID: id, Image: img}, nil
}
