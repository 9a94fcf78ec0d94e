// Package media holds the remote media hosts the upload widget can transfer
// files to.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hackclub/mediafield/internal/imageproc"
	"github.com/hackclub/mediafield/internal/storage"
	"github.com/hackclub/mediafield/internal/util"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/rs/zerolog"
)

// StoreHost processes images and keeps them in an object store under
// content-addressed keys, so re-uploading the same file is free.
type StoreHost struct {
	processor imageproc.Processor
	store     storage.Store
	folder    string
	logger    zerolog.Logger
}

func NewStoreHost(processor imageproc.Processor, store storage.Store, folder string, logger zerolog.Logger) *StoreHost {
	return &StoreHost{
		processor: processor,
		store:     store,
		folder:    folder,
		logger:    logger,
	}
}

func (h *StoreHost) Upload(ctx context.Context, cfg widget.Config, src widget.Source) (*widget.Info, error) {
	result, err := h.processor.Process(src.Data, src.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	ext := util.GetImageExtension(result.ContentType)
	key := util.ContentKey(path.Join(h.folder, cfg.UploadPreset), result.Data, ext)

	logger := h.logger.With().Str("key", key).Str("filename", src.Filename).Logger()
	logger.Info().
		Int("original_size", result.OriginalSize).
		Int("compressed_size", result.CompressedSize).
		Msg("processed image")

	exists, err := h.store.ObjectExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check if object exists: %w", err)
	}

	var publicURL string
	if exists {
		publicURL = h.store.GetPublicURL(key)
		logger.Info().Str("public_url", publicURL).Msg("object already exists, using existing")
	} else {
		uploaded, err := h.store.Upload(ctx, key, result.Data, result.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload to storage: %w", err)
		}
		publicURL = uploaded.URL
		logger.Info().Str("public_url", publicURL).Msg("uploaded new object")
	}

	return &widget.Info{
		SecureURL:    publicURL,
		PublicID:     strings.TrimSuffix(key, ext),
		Format:       util.FormatFromMIME(result.ContentType),
		ResourceType: widget.ResourceImage,
		Width:        result.Width,
		Height:       result.Height,
		Bytes:        result.CompressedSize,
	}, nil
}
