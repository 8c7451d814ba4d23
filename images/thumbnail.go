package images

import (
	"image"
	"image/jpeg"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// SaveThumbnail writes a JPEG thumbnail of a region of img to path.
//
// The region is clipped to the image bounds and scaled down (never up) so that neither
// side exceeds maxSide, preserving the aspect ratio.
//
// Arguments:
//   - path: Destination file.
//   - img: The source image.
//   - region: The area of img to keep.
//   - maxSide: The maximum width and height of the thumbnail.
//
// Returns:
//   - error: An error if the region is empty or the file cannot be written.
func SaveThumbnail(path string, img image.Image, region image.Rectangle, maxSide uint) error {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return errors.Errorf("thumbnail region %v is outside image bounds %v", region, img.Bounds())
	}

	sub := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	for y := 0; y < region.Dy(); y++ {
		for x := 0; x < region.Dx(); x++ {
			sub.Set(x, y, img.At(region.Min.X+x, region.Min.Y+y))
		}
	}

	thumb := resize.Thumbnail(maxSide, maxSide, sub, resize.Lanczos3)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	if err := jpeg.Encode(f, thumb, &jpeg.Options{Quality: 90}); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return nil
}
