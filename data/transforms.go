package data

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"

	"sknet/models"
	"sknet/tensor"
)

// interpolator maps a configuration name to a scaling kernel.
func interpolator(name string) (xdraw.Interpolator, error) {
	switch name {
	case "bilinear", "":
		return xdraw.BiLinear, nil
	case "bicubic":
		return xdraw.CatmullRom, nil
	case "nearest":
		return xdraw.NearestNeighbor, nil
	}
	return nil, fmt.Errorf("unsupported interpolation %q", name)
}

// PrepareImage reads an image file and converts it to a model input of
// shape [1, C, H, W] following the configuration: scale so the crop fits,
// center crop, then normalize per channel.
func PrepareImage(path string, cfg models.DataConfig) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return TensorFromImage(img, cfg)
}

// TensorFromImage converts a decoded image per the configuration. Three
// channel models get RGB planes; single channel models get luminance.
func TensorFromImage(img image.Image, cfg models.DataConfig) (*tensor.Tensor, error) {
	chans, height, width := cfg.InputSize[0], cfg.InputSize[1], cfg.InputSize[2]
	if chans != 1 && chans != 3 {
		return nil, fmt.Errorf("input channels must be 1 or 3, got %d", chans)
	}
	if height < 1 || width < 1 {
		return nil, fmt.Errorf("input size %dx%d is not positive", height, width)
	}
	cropPct := cfg.CropPct
	if cropPct == 0 {
		cropPct = 1
	}
	if cropPct < 0 || cropPct > 1 {
		return nil, fmt.Errorf("crop percentage %f outside (0, 1]", cropPct)
	}
	for c := 0; c < chans; c++ {
		if cfg.Std[c] == 0 {
			return nil, fmt.Errorf("channel %d has zero std", c)
		}
	}
	interp, err := interpolator(cfg.Interpolation)
	if err != nil {
		return nil, err
	}

	// Scale so the crop region fits: square targets scale the shorter side
	// and keep aspect ratio, others scale both dimensions.
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW < 1 || srcH < 1 {
		return nil, fmt.Errorf("empty image")
	}
	var dstW, dstH int
	if height == width {
		target := int(math.Floor(float64(height) / cropPct))
		if srcW < srcH {
			dstW = target
			dstH = int(math.Round(float64(srcH) * float64(target) / float64(srcW)))
		} else {
			dstH = target
			dstW = int(math.Round(float64(srcW) * float64(target) / float64(srcH)))
		}
	} else {
		dstH = int(math.Floor(float64(height) / cropPct))
		dstW = int(math.Floor(float64(width) / cropPct))
	}
	scaled := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	interp.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)

	x0 := (dstW - width) / 2
	y0 := (dstH - height) / 2

	out := tensor.New(1, chans, height, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := scaled.At(x0+x, y0+y).RGBA()
			rf := float64(r) / 65535
			gf := float64(g) / 65535
			bf := float64(bl) / 65535
			if chans == 1 {
				lum := 0.299*rf + 0.587*gf + 0.114*bf
				out.Set((lum-cfg.Mean[0])/cfg.Std[0], 0, 0, y, x)
			} else {
				out.Set((rf-cfg.Mean[0])/cfg.Std[0], 0, 0, y, x)
				out.Set((gf-cfg.Mean[1])/cfg.Std[1], 0, 1, y, x)
				out.Set((bf-cfg.Mean[2])/cfg.Std[2], 0, 2, y, x)
			}
		}
	}
	return out, nil
}
