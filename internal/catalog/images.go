package catalog

import (
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
)

// cardTransformation sizes catalog images for listing cards.
const cardTransformation = "c_fill,h_400,w_600,q_auto,f_auto"

// ImageResolver turns stored image references into delivery URLs.
// References that are already absolute URLs pass through unchanged; anything
// else is treated as a Cloudinary public ID.
type ImageResolver struct {
	cld *cloudinary.Cloudinary
}

// NewImageResolver creates a resolver for cloudName. With an empty cloud
// name, references are returned as stored.
func NewImageResolver(cloudName, apiKey, apiSecret string) (*ImageResolver, error) {
	if cloudName == "" {
		return &ImageResolver{}, nil
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	cld.Config.URL.Analytics = false
	return &ImageResolver{cld: cld}, nil
}

// Resolve returns the delivery URL for ref.
func (r *ImageResolver) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || r == nil || r.cld == nil || isAbsoluteURL(ref) {
		return ref
	}

	img, err := r.cld.Image(ref)
	if err != nil {
		return ref
	}
	img.Transformation = cardTransformation
	u, err := img.String()
	if err != nil {
		return ref
	}
	return u
}

// Apply resolves the image reference of every accommodation in place.
func (r *ImageResolver) Apply(list []Accommodation) {
	for i := range list {
		list[i].ImageURL = r.Resolve(list[i].ImageURL)
	}
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}
