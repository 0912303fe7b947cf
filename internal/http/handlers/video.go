// Package handlers provides HTTP API handlers for hlsvault.
package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pirelike/hlsvault/internal/apperrors"
	"github.com/pirelike/hlsvault/internal/coordinator"
	"github.com/pirelike/hlsvault/internal/models"
	"github.com/pirelike/hlsvault/internal/repository"
)

// VideoHandler handles catalog video listing, retrieval, and deletion.
type VideoHandler struct {
	videos      repository.VideoRepository
	coordinator *coordinator.Coordinator
}

// NewVideoHandler creates a VideoHandler.
func NewVideoHandler(videos repository.VideoRepository, coord *coordinator.Coordinator) *VideoHandler {
	return &VideoHandler{videos: videos, coordinator: coord}
}

// VideoResponse is the API representation of a catalog video.
type VideoResponse struct {
	VideoID        string    `json:"video_id"`
	SourceFilename string    `json:"source_filename"`
	Container      string    `json:"container"`
	VideoCodec     string    `json:"video_codec"`
	AudioCodec     string    `json:"audio_codec"`
	DurationS      float64   `json:"duration_s"`
	TotalSegments  int       `json:"total_segments"`
	TotalBytes     int64     `json:"total_bytes"`
	Status         string    `json:"status"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func videoToResponse(v *models.Video) VideoResponse {
	return VideoResponse{
		VideoID:        v.VideoID,
		SourceFilename: v.SourceFilename,
		Container:      v.Container,
		VideoCodec:     v.VideoCodec,
		AudioCodec:     v.AudioCodec,
		DurationS:      v.DurationS,
		TotalSegments:  v.TotalSegments,
		TotalBytes:     v.TotalBytes,
		Status:         string(v.Status),
		LastError:      v.LastError,
		CreatedAt:      v.CreatedAt,
	}
}

// ListVideosInput is the input for listing videos.
type ListVideosInput struct{}

// ListVideosOutput is the output for listing videos.
type ListVideosOutput struct {
	Body struct {
		Videos []VideoResponse `json:"videos"`
	}
}

// GetVideoInput is the input for retrieving a single video.
type GetVideoInput struct {
	VideoID string `path:"id" doc:"Catalog video ID"`
}

// GetVideoOutput is the output for retrieving a single video.
type GetVideoOutput struct {
	Body VideoResponse
}

// DeleteVideoInput is the input for deleting a video.
type DeleteVideoInput struct {
	VideoID string `path:"id" doc:"Catalog video ID"`
}

// DeleteVideoOutput is the (empty-body) output for a successful delete.
type DeleteVideoOutput struct{}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/videos",
		Summary:     "List catalog videos",
		Tags:        []string{"Videos"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/videos/{id}",
		Summary:     "Get a catalog video",
		Tags:        []string{"Videos"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "deleteVideo",
		Method:      "DELETE",
		Path:        "/api/videos/{id}",
		Summary:     "Delete a catalog video",
		Tags:        []string{"Videos"},
	}, h.Delete)
}

// List returns all catalog videos, most recently created first.
func (h *VideoHandler) List(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	videos, err := h.videos.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing videos", err)
	}

	out := &ListVideosOutput{}
	out.Body.Videos = make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		out.Body.Videos = append(out.Body.Videos, videoToResponse(v))
	}
	return out, nil
}

// Get returns a single catalog video by ID.
func (h *VideoHandler) Get(ctx context.Context, input *GetVideoInput) (*GetVideoOutput, error) {
	v, err := h.videos.GetByID(ctx, input.VideoID)
	if err != nil {
		return nil, huma.Error404NotFound("video not found")
	}
	return &GetVideoOutput{Body: videoToResponse(v)}, nil
}

// Delete removes a catalog video and best-effort deletes its remote
// segments.
func (h *VideoHandler) Delete(ctx context.Context, input *DeleteVideoInput) (*DeleteVideoOutput, error) {
	if err := h.coordinator.Delete(ctx, input.VideoID); err != nil {
		if appErr, ok := err.(*apperrors.Error); ok {
			return nil, mapAppError(appErr)
		}
		return nil, huma.Error500InternalServerError("deleting video", err)
	}
	return &DeleteVideoOutput{}, nil
}

// mapAppError translates an apperrors.Error into the matching huma status
// error, carrying the {"error": "<kind>", "detail": "<text>"} body shape
// spec §7 prescribes.
func mapAppError(err *apperrors.Error) error {
	switch err.Kind.HTTPStatus() {
	case 404:
		return huma.Error404NotFound(err.Detail)
	case 409:
		return huma.Error409Conflict(err.Detail)
	case 503:
		return huma.Error503ServiceUnavailable(err.Detail)
	case 504:
		return huma.Error504GatewayTimeout(err.Detail)
	case 400:
		return huma.Error400BadRequest(err.Detail)
	case 502:
		return huma.Error502BadGateway(err.Detail)
	default:
		return huma.Error500InternalServerError(err.Detail)
	}
}
