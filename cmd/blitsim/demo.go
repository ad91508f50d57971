package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/pixel"
	"github.com/gogpu/blit/vm"
)

const canvasSize = 128

// demoJob is a named job of the demo set.
type demoJob struct {
	name string
	job  *blit.Job
}

// allocImage allocates a packed RGB image in sp and paints it with f.
func allocImage(sp *vm.Space, f pixel.Format, w, h int, paint func(x, y int) color.NRGBA) (blit.Image, error) {
	bpp := f.BytesPerPixel()
	stride := w * bpp
	addr, err := sp.Alloc(stride * h)
	if err != nil {
		return blit.Image{}, err
	}
	buf, err := sp.Bytes(addr, stride*h)
	if err != nil {
		return blit.Image{}, err
	}
	for y := range h {
		for x := range w {
			off := y*stride + x*bpp
			pixel.Store(f, pixel.LittleEndian, buf[off:off+bpp], paint(x, y))
		}
	}
	return blit.Image{
		Kind:   blit.AddrUserVirtual,
		Addr:   addr,
		Width:  w,
		Height: h,
		Stride: stride,
		Format: f,
		Rect:   blit.Rect{W: w, H: h},
	}, nil
}

func gradient(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 160, A: 255}
}

func disc(x, y int) color.NRGBA {
	dx, dy := x-16, y-16
	if dx*dx+dy*dy > 15*15 {
		return color.NRGBA{}
	}
	return color.NRGBA{R: 240, G: 200, B: 40, A: 255}
}

func checker(x, y int) color.NRGBA {
	if (x/4+y/4)%2 == 0 {
		return color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	}
	return color.NRGBA{R: 230, G: 230, B: 230, A: 255}
}

// demoJobs builds the demo set. All jobs composite onto canvas except the
// last, whose destination is a separate scratch buffer returned as scratch
// so a mapping failure can be injected on it.
func demoJobs(sp *vm.Space, canvas blit.Image) (jobs []demoJob, scratch blit.Image, err error) {
	bg, err := allocImage(sp, pixel.FormatXRGB8888, 32, 32, gradient)
	if err != nil {
		return nil, blit.Image{}, err
	}
	sprite, err := allocImage(sp, pixel.FormatARGB8888, 32, 32, disc)
	if err != nil {
		return nil, blit.Image{}, err
	}
	tile, err := allocImage(sp, pixel.FormatXRGB8888, 8, 8, checker)
	if err != nil {
		return nil, blit.Image{}, err
	}
	scratch, err = allocImage(sp, pixel.FormatXRGB8888, 16, 16, checker)
	if err != nil {
		return nil, blit.Image{}, err
	}

	add := func(name string, build func(j *blit.Job)) {
		j := blit.NewJob(sp)
		j.Images[blit.SlotDestination] = canvas
		build(j)
		jobs = append(jobs, demoJob{name: name, job: j})
	}
	at := func(x, y, w, h int) blit.Rect { return blit.Rect{X: x, Y: y, W: w, H: h} }

	add("background", func(j *blit.Job) {
		j.Images[blit.SlotSource] = bg
		j.Images[blit.SlotDestination].Rect = at(0, 0, canvasSize, canvasSize)
		j.Params.Scaling = blit.Scaling{Mode: blit.ScaleBilinear, SrcW: 32, SrcH: 32, DstW: canvasSize, DstH: canvasSize}
	})
	add("fill", func(j *blit.Job) {
		j.Params.FillColor = color.NRGBA{R: 30, G: 90, B: 200, A: 255}
		j.Images[blit.SlotDestination].Rect = at(8, 8, 24, 24)
	})
	add("sprite", func(j *blit.Job) {
		j.Images[blit.SlotSource] = sprite
		j.Images[blit.SlotDestination].Rect = at(48, 48, 32, 32)
	})
	add("ghost", func(j *blit.Job) {
		j.Images[blit.SlotSource] = sprite
		j.Images[blit.SlotDestination].Rect = at(88, 20, 32, 32)
		j.Params.GlobalAlpha = 96
		j.Params.Rotation = blit.Rotation{Degrees: 90}
	})
	add("tiles", func(j *blit.Job) {
		j.Images[blit.SlotSource] = tile
		j.Images[blit.SlotDestination].Rect = at(8, 96, 112, 24)
		j.Params.Repeat = blit.Repeat{Mode: blit.RepeatNormal}
	})
	add("fade", func(j *blit.Job) {
		j.Params.Op = blit.OpSrcOver
		j.Params.FillColor = color.NRGBA{A: 255}
		j.Params.GlobalAlpha = 64
		j.Images[blit.SlotDestination].Rect = at(0, 0, canvasSize, 8)
	})
	add("fallback", func(j *blit.Job) {
		j.Images[blit.SlotSource] = tile
		j.Images[blit.SlotDestination] = scratch
	})

	for _, d := range jobs {
		if err := d.job.Validate(); err != nil {
			return nil, blit.Image{}, fmt.Errorf("demo job %s: %w", d.name, err)
		}
	}
	return jobs, scratch, nil
}

// snapshot decodes the whole image into an NRGBA picture.
func snapshot(sp *vm.Space, im blit.Image) (*image.NRGBA, error) {
	buf, err := sp.Bytes(im.Addr, im.Stride*im.Height)
	if err != nil {
		return nil, err
	}
	bpp := im.Format.BytesPerPixel()
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := range im.Height {
		for x := range im.Width {
			off := y*im.Stride + x*bpp
			out.SetNRGBA(x, y, pixel.Load(im.Format, im.Order, buf[off:off+bpp]))
		}
	}
	return out, nil
}
