//go:build !tinygo && cgo

package texaux

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"

	"github.com/soypat/toonshade/grid"
)

const previewVertex = `#version 460
in vec2 aPos;
out vec2 vTexCoord;
void main() {
    vTexCoord = vec2(aPos.x * 0.5 + 0.5, 0.5 - aPos.y * 0.5);
    gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

// The fragment shader lights the threshold map with a sweeping light
// intensity: texels whose threshold is below the light are lit.
const previewFragment = `#version 460
in vec2 vTexCoord;
out vec4 fragColor;

uniform sampler2D uThreshold;
uniform float uLight;
uniform int uRaw;
uniform float uZoom;
uniform vec2 uCenter;

void main() {
    vec2 uv = (vTexCoord - 0.5) / uZoom + uCenter;
    if (uv.x < 0.0 || uv.y < 0.0 || uv.x > 1.0 || uv.y > 1.0) {
        fragColor = vec4(0.1, 0.1, 0.1, 1.0);
        return;
    }
    float t = texture(uThreshold, uv).r;
    vec3 shade = vec3(0.25, 0.3, 0.5);
    vec3 lit = vec3(1.0, 0.9, 0.75);
    if (uRaw != 0) {
        fragColor = vec4(vec3(t), 1.0);
        return;
    }
    fragColor = vec4(t < uLight ? lit : shade, 1.0);
}
` + "\x00"

func preview(tex *grid.Texture, cfg PreviewConfig) error {
	window, term, err := startGLFW(cfg.Width, cfg.Height, "toonshade threshold preview "+tex.Name)
	if err != nil {
		return err
	}
	defer term()
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   previewVertex,
		Fragment: previewFragment,
	})
	if err != nil {
		return fmt.Errorf("compiling preview program: %w", err)
	}
	defer prog.Delete()
	prog.Bind()

	// Upload the red channel of the threshold map as a float texture.
	texels := make([]float32, tex.Size*tex.Size)
	for y := 0; y < tex.Size; y++ {
		for x := 0; x < tex.Size; x++ {
			texels[y*tex.Size+x] = tex.Texel(x, y)[0]
		}
	}
	var texID uint32
	gl.GenTextures(1, &texID)
	defer gl.DeleteTextures(1, &texID)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texID)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.R32F, int32(tex.Size), int32(tex.Size), 0, gl.RED, gl.FLOAT, gl.Ptr(texels))
	if err = glgl.Err(); err != nil {
		return fmt.Errorf("uploading threshold texture: %w", err)
	}

	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	var vbo uint32
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	vertices := []float32{
		-1.0, -1.0,
		1.0, -1.0,
		-1.0, 1.0,
		-1.0, 1.0,
		1.0, -1.0,
		1.0, 1.0,
	}
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(vertices), gl.Ptr(vertices), gl.STATIC_DRAW)
	posAttrib, err := prog.AttribLocation("aPos\x00")
	if err != nil {
		return err
	}
	gl.EnableVertexAttribArray(posAttrib)
	gl.VertexAttribPointer(posAttrib, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))

	samplerUniform, err := prog.UniformLocation("uThreshold\x00")
	if err != nil {
		return err
	}
	lightUniform, err := prog.UniformLocation("uLight\x00")
	if err != nil {
		return err
	}
	rawUniform, err := prog.UniformLocation("uRaw\x00")
	if err != nil {
		return err
	}
	zoomUniform, err := prog.UniformLocation("uZoom\x00")
	if err != nil {
		return err
	}
	centerUniform, err := prog.UniformLocation("uCenter\x00")
	if err != nil {
		return err
	}
	gl.Uniform1i(samplerUniform, 0)

	var (
		zoom      float64 = 1
		centerX   float64 = 0.5
		centerY   float64 = 0.5
		light     float64 = 0.5
		raw       bool
		dragging  bool
		lastX     float64
		lastY     float64
		autoSweep = cfg.Sweep
	)
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		zoom *= 1 + 0.1*yoff
		zoom = min(max(zoom, 0.25), 64)
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button == glfw.MouseButtonLeft {
			dragging = action == glfw.Press
			lastX, lastY = w.GetCursorPos()
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if !dragging {
			return
		}
		width, height := w.GetSize()
		centerX -= (xpos - lastX) / float64(width) / zoom
		centerY -= (ypos - lastY) / float64(height) / zoom
		lastX, lastY = xpos, ypos
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Release {
			return
		}
		switch key {
		case glfw.KeyUp:
			light = min(light+0.02, 1)
			autoSweep = false
		case glfw.KeyDown:
			light = max(light-0.02, 0)
			autoSweep = false
		case glfw.KeySpace:
			raw = !raw
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})

	ctx := cfg.Context
	start := time.Now()
	for !window.ShouldClose() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if autoSweep {
			// Triangle wave over 4 seconds.
			phase := time.Since(start).Seconds() / 4
			phase -= float64(int(phase))
			light = 1 - 2*math.Abs(phase-0.5)
		}
		gl.ClearColor(0.0, 0.0, 0.0, 1.0)
		gl.Clear(gl.COLOR_BUFFER_BIT)
		prog.Bind()
		gl.Uniform1f(lightUniform, float32(light))
		gl.Uniform1f(zoomUniform, float32(zoom))
		gl.Uniform2f(centerUniform, float32(centerX), float32(centerY))
		rawMode := int32(0)
		if raw {
			rawMode = 1
		}
		gl.Uniform1i(rawUniform, rawMode)
		gl.BindVertexArray(vao)
		gl.DrawArrays(gl.TRIANGLES, 0, 6)
		window.SwapBuffers()
		time.Sleep(time.Second / 60)
		glfw.PollEvents()
	}
	return nil
}

func startGLFW(width, height int, title string) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("failed to create GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
