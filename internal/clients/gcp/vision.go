package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// Vision is the visual-recognition capability used by the validation engine:
// it detects brand logos across a batch of images associated with a term.
type Vision interface {
	DetectLogos(ctx context.Context, images [][]byte) (*LogoDetectionResult, error)
	Close() error
}

// LogoDetection is one recognized brand with its aggregate share across the
// image batch.
type LogoDetection struct {
	Brand      string  `json:"brand"`
	Count      int     `json:"count"`
	Share      float64 `json:"share"`
	Confidence float64 `json:"confidence"`
}

type LogoDetectionResult struct {
	Provider      string          `json:"provider"`
	ImagesTotal   int             `json:"images_total"`
	ImagesWithHit int             `json:"images_with_hit"`
	Detections    []LogoDetection `json:"detections"`
}

// DominantShare returns the share of the most frequent brand, zero when
// nothing was detected.
func (r *LogoDetectionResult) DominantShare() float64 {
	if r == nil || len(r.Detections) == 0 {
		return 0
	}
	return r.Detections[0].Share
}

func (r *LogoDetectionResult) DominantBrand() string {
	if r == nil || len(r.Detections) == 0 {
		return ""
	}
	return r.Detections[0].Brand
}

type visionService struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	vClient, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &visionService{
		log:          slog,
		visionClient: vClient,
	}, nil
}

func (s *visionService) Close() error {
	if s == nil {
		return nil
	}
	if s.visionClient != nil {
		_ = s.visionClient.Close()
	}
	return nil
}

func (s *visionService) DetectLogos(ctx context.Context, images [][]byte) (*LogoDetectionResult, error) {
	if len(images) == 0 {
		return &LogoDetectionResult{Provider: "gcp_vision"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	reqs := make([]*visionpb.AnnotateImageRequest, 0, len(images))
	for _, img := range images {
		if len(img) == 0 {
			continue
		}
		reqs = append(reqs, &visionpb.AnnotateImageRequest{
			Image: &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_LOGO_DETECTION, MaxResults: 5},
			},
		})
	}
	if len(reqs) == 0 {
		return &LogoDetectionResult{Provider: "gcp_vision"}, nil
	}

	br := &visionpb.BatchAnnotateImagesRequest{Requests: reqs}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil {
		return &LogoDetectionResult{Provider: "gcp_vision", ImagesTotal: len(reqs)}, nil
	}

	type tally struct {
		count int
		conf  float64
	}
	counts := map[string]*tally{}
	withHit := 0

	for _, r := range resp.Responses {
		if r == nil {
			continue
		}
		if r.Error != nil && r.Error.Message != "" {
			s.log.Warn("Vision annotate error on one image", "error", r.Error.Message)
			continue
		}
		if len(r.LogoAnnotations) > 0 {
			withHit++
		}
		for _, anno := range r.LogoAnnotations {
			name := strings.TrimSpace(anno.Description)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			t, ok := counts[key]
			if !ok {
				t = &tally{}
				counts[key] = t
			}
			t.count++
			if float64(anno.Score) > t.conf {
				t.conf = float64(anno.Score)
			}
		}
	}

	out := &LogoDetectionResult{
		Provider:    "gcp_vision",
		ImagesTotal: len(reqs),
	}
	out.ImagesWithHit = withHit
	for brand, t := range counts {
		out.Detections = append(out.Detections, LogoDetection{
			Brand:      brand,
			Count:      t.count,
			Share:      float64(t.count) / float64(len(reqs)),
			Confidence: t.conf,
		})
	}
	sort.Slice(out.Detections, func(i, j int) bool {
		if out.Detections[i].Count != out.Detections[j].Count {
			return out.Detections[i].Count > out.Detections[j].Count
		}
		return out.Detections[i].Brand < out.Detections[j].Brand
	})
	return out, nil
}
