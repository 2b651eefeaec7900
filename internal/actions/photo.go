package actions

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Registers decoders for formats Telegram's photo endpoint rejects, so
	// send_photo can re-encode instead of failing outright.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// photoNativeExts are formats the transport sends as-is.
var photoNativeExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

// ensurePhotoCompatible returns a path safe to hand to ReplyPhoto. For a
// format the transport doesn't accept natively (bmp, tiff, webp, ...) it
// decodes and re-encodes to PNG into a temp file, returning that file's
// path as the second value for the caller to remove after sending.
func ensurePhotoCompatible(path string) (sendPath string, cleanupPath string, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if photoNativeExts[ext] {
		return path, "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", ext, err)
	}

	out, err := os.CreateTemp("", "megobari-photo-*.png")
	if err != nil {
		return "", "", err
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		os.Remove(out.Name())
		return "", "", fmt.Errorf("re-encode to png: %w", err)
	}
	return out.Name(), out.Name(), nil
}
