package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/rs/zerolog"
)

// CloudinaryHost sends files to Cloudinary as unsigned uploads using the
// widget's upload preset.
type CloudinaryHost struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

func NewCloudinaryHost(cloudName, apiKey, apiSecret, folder string, logger zerolog.Logger) (*CloudinaryHost, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &CloudinaryHost{cld: cld, folder: folder, logger: logger}, nil
}

func (h *CloudinaryHost) Upload(ctx context.Context, cfg widget.Config, src widget.Source) (*widget.Info, error) {
	params := uploader.UploadParams{
		ResourceType: cfg.ResourceType,
		Folder:       h.folder,
	}

	res, err := h.cld.Upload.UnsignedUpload(ctx, bytes.NewReader(src.Data), cfg.UploadPreset, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary rejected upload: %s", res.Error.Message)
	}

	h.logger.Info().
		Str("public_id", res.PublicID).
		Str("secure_url", res.SecureURL).
		Int("bytes", res.Bytes).
		Msg("uploaded to cloudinary")

	return &widget.Info{
		SecureURL:    res.SecureURL,
		PublicID:     res.PublicID,
		Format:       res.Format,
		ResourceType: res.ResourceType,
		Width:        res.Width,
		Height:       res.Height,
		Bytes:        res.Bytes,
	}, nil
}
