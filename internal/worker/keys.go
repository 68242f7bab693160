package worker

// OriginalExtensions lists the file extensions a product's original image
// may have been uploaded with, in probe order.
var OriginalExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// thumbnailContentType is the content type stored alongside every thumbnail.
const thumbnailContentType = "image/webp"

// OriginalKey returns the storage key of a product's original image for the
// given extension.
func OriginalKey(sku, ext string) string {
	return sku + ext
}

// ThumbnailKey returns the storage key of a product's cached thumbnail.
// Thumbnails are always webp regardless of the original's format.
func ThumbnailKey(sku string) string {
	return sku + "_thumb.webp"
}
