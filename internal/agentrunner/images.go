package agentrunner

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
)

// mimeByExt maps image file extensions to MIME types per spec.md §4.3;
// any other extension falls back to image/png.
var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// EncodeImageFile reads path and returns a base64-encoded block with a
// MIME type detected from its extension. Shared by every Provider
// implementation since the encoding itself is provider-agnostic; only the
// surrounding multipart block shape differs per provider.
func EncodeImageFile(path string) (ImageBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageBlock{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	mediaType, ok := mimeByExt[ext]
	if !ok {
		mediaType = "image/png"
	}
	return ImageBlock{
		MediaType: mediaType,
		Base64:    base64.StdEncoding.EncodeToString(data),
	}, nil
}
