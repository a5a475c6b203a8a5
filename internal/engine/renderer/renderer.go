// Package renderer draws viewer scenes and instanced tendon geometry with
// OpenGL, on screen or into an offscreen framebuffer for export.
package renderer

import (
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/engine/camera"
	"github.com/Faultbox/mjtraj/internal/engine/framebuffer"
	"github.com/Faultbox/mjtraj/internal/engine/instancing"
	"github.com/Faultbox/mjtraj/internal/engine/lighting"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/engine/shader"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/playback"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width      int
	Height     int
	Background [4]float32
	Ambient    float32
	LightDir   math.Vec3
}

// DefaultConfig returns the default clear color and lighting.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:      width,
		Height:     height,
		Background: [4]float32{0.1, 0.1, 0.15, 1},
		Ambient:    0.3,
		LightDir:   lighting.DefaultSun(),
	}
}

type meshBuffers struct {
	vao, vbo, ebo uint32
	indexCount    int32
}

type instanceBuffers struct {
	mesh     meshBuffers
	ibo      uint32
	capacity int
}

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config Config
	log    *zap.Logger

	mesh      *shader.Program
	instanced *shader.Program

	meshes    map[*scene.Geometry]*meshBuffers
	textures  map[*scene.Texture]uint32
	cylinders *instanceBuffers
	spheres   *instanceBuffers
	manager   *instancing.Manager

	// View used for offscreen frames.
	View camera.View

	offscreen *framebuffer.Framebuffer
}

// New creates a renderer. Must be called after the OpenGL context exists.
func New(cfg Config) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	r := &Renderer{
		config:   cfg,
		log:      logger.Named("renderer"),
		meshes:   make(map[*scene.Geometry]*meshBuffers),
		textures: make(map[*scene.Texture]uint32),
	}

	r.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	var err error
	if r.mesh, err = shader.New(meshVertexShader, litFragmentShader); err != nil {
		return nil, fmt.Errorf("mesh shader: %w", err)
	}
	if r.instanced, err = shader.New(instancedVertexShader, instancedFragmentShader); err != nil {
		r.mesh.Delete()
		return nil, fmt.Errorf("instanced shader: %w", err)
	}
	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))
	return r, nil
}

// Close releases every GPU resource.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	r.Reset()
	if r.offscreen != nil {
		r.offscreen.Destroy()
		r.offscreen = nil
	}
	r.mesh.Delete()
	r.instanced.Delete()
}

// Reset drops cached meshes and textures, for example after the model is
// replaced.
func (r *Renderer) Reset() {
	for g, mb := range r.meshes {
		deleteMesh(mb)
		delete(r.meshes, g)
	}
	for t, id := range r.textures {
		gl.DeleteTextures(1, &id)
		delete(r.textures, t)
	}
	for _, ib := range []*instanceBuffers{r.cylinders, r.spheres} {
		if ib != nil {
			deleteMesh(&ib.mesh)
			gl.DeleteBuffers(1, &ib.ibo)
		}
	}
	r.cylinders, r.spheres, r.manager = nil, nil, nil
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// Size returns the on-screen viewport size.
func (r *Renderer) Size() (int, int) {
	return r.config.Width, r.config.Height
}

// Draw renders the viewer's scenes and instanced geometry with view into the
// currently bound framebuffer.
func (r *Renderer) Draw(v *playback.Viewer, view camera.View, width, height int) {
	bg := r.config.Background
	gl.ClearColor(bg[0], bg[1], bg[2], bg[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	if !v.Ready() {
		return
	}

	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	viewProj := camera.ViewProjection(view, aspect)
	eye := eyePosition(view.ViewMatrix())

	r.drawItems(Collect(v.Scenes(), eye), viewProj, eye)
	r.drawInstances(v.Instancing(), viewProj)
}

// RenderFrame draws v offscreen at width x height with r.View and returns
// the pixels top-down.
func (r *Renderer) RenderFrame(ctx context.Context, v *playback.Viewer, width, height int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.View == nil {
		return nil, fmt.Errorf("renderer: no view set")
	}
	if r.offscreen == nil {
		fb, err := framebuffer.New(int32(width), int32(height))
		if err != nil {
			return nil, err
		}
		r.offscreen = fb
	}
	r.offscreen.Resize(int32(width), int32(height))

	restore := r.offscreen.BindWithViewport()
	r.Draw(v, r.View, width, height)
	gl.Finish()
	restore()
	return r.offscreen.ReadImage()
}

func (r *Renderer) drawItems(items []Item, viewProj math.Mat4, eye math.Vec3) {
	p := r.mesh
	p.Use()
	p.SetMat4("uViewProj", viewProj)
	p.SetVec3("uLightDir", r.config.LightDir)
	p.SetVec3("uEyePos", eye)
	p.SetFloat("uAmbient", r.config.Ambient)
	p.SetInt("uTexture", 0)
	gl.ActiveTexture(gl.TEXTURE0)

	for _, it := range items {
		mb := r.meshFor(it.Geometry)
		if mb == nil {
			continue
		}
		mat := it.Material
		if mat == nil {
			mat = scene.NewMaterial([4]float32{0.5, 0.5, 0.5, 1})
		}
		p.SetMat4("uModel", it.Model)
		p.SetVec4("uColor", mat.Color)
		p.SetFloat("uSpecular", mat.Specular)
		p.SetFloat("uShininess", mat.Shininess)
		p.SetFloat("uEmission", mat.Emission)
		if tex := r.textureFor(mat.Texture); tex != 0 {
			p.SetBool("uUseTexture", true)
			gl.BindTexture(gl.TEXTURE_2D, tex)
		} else {
			p.SetBool("uUseTexture", false)
		}
		gl.DepthMask(mat.DepthWrite)

		gl.BindVertexArray(mb.vao)
		gl.DrawElements(gl.TRIANGLES, mb.indexCount, gl.UNSIGNED_INT, nil)
	}
	gl.DepthMask(true)
	gl.BindVertexArray(0)
}

func (r *Renderer) drawInstances(m *instancing.Manager, viewProj math.Mat4) {
	if m == nil {
		return
	}
	if m != r.manager {
		r.uploadInstanceTemplates(m)
	}
	p := r.instanced
	p.Use()
	p.SetMat4("uViewProj", viewProj)
	p.SetVec3("uLightDir", r.config.LightDir)
	p.SetFloat("uAmbient", r.config.Ambient)

	for _, pair := range []struct {
		buf *instancing.Buffer
		ib  *instanceBuffers
	}{{m.Cylinders, r.cylinders}, {m.Spheres, r.spheres}} {
		items := pair.buf.Visible()
		if len(items) == 0 {
			continue
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, pair.ib.ibo)
		gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(items)*instanceStride, unsafe.Pointer(&items[0]))
		gl.BindVertexArray(pair.ib.mesh.vao)
		gl.DrawElementsInstanced(gl.TRIANGLES, pair.ib.mesh.indexCount, gl.UNSIGNED_INT, nil, int32(len(items)))
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

var instanceStride = int(unsafe.Sizeof(instancing.Instance{}))

func (r *Renderer) uploadInstanceTemplates(m *instancing.Manager) {
	for _, ib := range []*instanceBuffers{r.cylinders, r.spheres} {
		if ib != nil {
			deleteMesh(&ib.mesh)
			gl.DeleteBuffers(1, &ib.ibo)
		}
	}
	r.cylinders = newInstanceBuffers(m.Cylinders)
	r.spheres = newInstanceBuffers(m.Spheres)
	r.manager = m
	r.log.Debug("instance buffers allocated",
		zap.Int("cylinders", m.Cylinders.Capacity()),
		zap.Int("spheres", m.Spheres.Capacity()))
}

func newInstanceBuffers(b *instancing.Buffer) *instanceBuffers {
	ib := &instanceBuffers{capacity: b.Capacity()}
	uploadMesh(&ib.mesh, b.Template)

	gl.BindVertexArray(ib.mesh.vao)
	gl.GenBuffers(1, &ib.ibo)
	gl.BindBuffer(gl.ARRAY_BUFFER, ib.ibo)
	gl.BufferData(gl.ARRAY_BUFFER, ib.capacity*instanceStride, nil, gl.DYNAMIC_DRAW)

	// mat4 takes four vec4 attribute slots.
	for i := uint32(0); i < 4; i++ {
		gl.VertexAttribPointerWithOffset(3+i, 4, gl.FLOAT, false, int32(instanceStride), uintptr(i*16))
		gl.EnableVertexAttribArray(3 + i)
		gl.VertexAttribDivisor(3+i, 1)
	}
	gl.VertexAttribPointerWithOffset(7, 4, gl.FLOAT, false, int32(instanceStride), 64)
	gl.EnableVertexAttribArray(7)
	gl.VertexAttribDivisor(7, 1)

	gl.BindVertexArray(0)
	return ib
}

func (r *Renderer) meshFor(g *scene.Geometry) *meshBuffers {
	if g == nil || len(g.Indices) == 0 {
		return nil
	}
	if mb, ok := r.meshes[g]; ok {
		return mb
	}
	mb := &meshBuffers{}
	uploadMesh(mb, g)
	r.meshes[g] = mb
	return mb
}

func uploadMesh(mb *meshBuffers, g *scene.Geometry) {
	gl.GenVertexArrays(1, &mb.vao)
	gl.BindVertexArray(mb.vao)

	gl.GenBuffers(1, &mb.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, mb.vbo)
	vertexSize := int(unsafe.Sizeof(scene.Vertex{}))
	gl.BufferData(gl.ARRAY_BUFFER, len(g.Vertices)*vertexSize, unsafe.Pointer(&g.Vertices[0]), gl.STATIC_DRAW)

	// Position
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, int32(vertexSize), 0)
	gl.EnableVertexAttribArray(0)
	// Normal
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, int32(vertexSize), 3*4)
	gl.EnableVertexAttribArray(1)
	// TexCoord
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, int32(vertexSize), 6*4)
	gl.EnableVertexAttribArray(2)

	gl.GenBuffers(1, &mb.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, mb.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(g.Indices)*4, unsafe.Pointer(&g.Indices[0]), gl.STATIC_DRAW)

	mb.indexCount = int32(len(g.Indices))
	gl.BindVertexArray(0)
}

func deleteMesh(mb *meshBuffers) {
	if mb.vao != 0 {
		gl.DeleteVertexArrays(1, &mb.vao)
	}
	if mb.vbo != 0 {
		gl.DeleteBuffers(1, &mb.vbo)
	}
	if mb.ebo != 0 {
		gl.DeleteBuffers(1, &mb.ebo)
	}
	*mb = meshBuffers{}
}

func (r *Renderer) textureFor(t *scene.Texture) uint32 {
	if t == nil || t.Image == nil || len(t.Image.Pix) == 0 {
		return 0
	}
	if id, ok := r.textures[t]; ok {
		return id
	}
	img := t.Image
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(img.Bounds().Dx()), int32(img.Bounds().Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	r.textures[t] = id
	return id
}

// eyePosition recovers the camera position from a rigid view matrix.
func eyePosition(view math.Mat4) math.Vec3 {
	t := math.Vec3{X: view[12], Y: view[13], Z: view[14]}
	// eye = -R^T t, with R stored column-major in view[0..10].
	return math.Vec3{
		X: -(view[0]*t.X + view[1]*t.Y + view[2]*t.Z),
		Y: -(view[4]*t.X + view[5]*t.Y + view[6]*t.Z),
		Z: -(view[8]*t.X + view[9]*t.Y + view[10]*t.Z),
	}
}
