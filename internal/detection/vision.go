package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/JaimeStill/headcount/internal/config"
)

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Vision detects faces with the Cloud Vision API and describes each face from
// its pixels and landmark geometry.
type Vision struct {
	annotate   annotateFunc
	close      func() error
	minConf    float64
	maxResults int32
	logger     *slog.Logger
}

// NewVision connects an image annotator client. Credentials come from
// cfg.CredentialsFile or application default credentials.
func NewVision(ctx context.Context, cfg *config.VisionConfig, logger *slog.Logger) (*Vision, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	return newVision(
		func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		client.Close,
		cfg,
		logger,
	), nil
}

func newVision(annotate annotateFunc, closeFn func() error, cfg *config.VisionConfig, logger *slog.Logger) *Vision {
	return &Vision{
		annotate:   annotate,
		close:      closeFn,
		minConf:    cfg.MinConfidence,
		maxResults: int32(cfg.MaxResults),
		logger:     logger,
	}
}

func (v *Vision) Name() string { return config.DetectionVision }

func (v *Vision) Close() error {
	if v.close == nil {
		return nil
	}
	return v.close()
}

func (v *Vision) Detect(ctx context.Context, img image.Image, raw []byte) ([]Observation, error) {
	resp, err := v.annotate(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: raw},
			Features: []*visionpb.Feature{{
				Type:       visionpb.Feature_FACE_DETECTION,
				MaxResults: v.maxResults,
			}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetect, err)
	}
	if len(resp.GetResponses()) == 0 {
		return []Observation{}, nil
	}

	r := resp.GetResponses()[0]
	if e := r.GetError(); e != nil && e.GetCode() != 0 {
		return nil, fmt.Errorf("%w: %s", ErrDetect, e.GetMessage())
	}

	out := make([]Observation, 0, len(r.GetFaceAnnotations()))
	for _, face := range r.GetFaceAnnotations() {
		conf := float64(face.GetDetectionConfidence())
		if conf < v.minConf {
			continue
		}

		box, ok := boundingBox(face, img.Bounds())
		if !ok {
			v.logger.Debug("face outside frame skipped")
			continue
		}

		out = append(out, Observation{
			Box:        box,
			Descriptor: append(Appearance(img, box), geometry(face, box)...),
			Confidence: &conf,
		})
	}

	return out, nil
}

func boundingBox(face *visionpb.FaceAnnotation, bounds image.Rectangle) (Box, bool) {
	poly := face.GetFdBoundingPoly()
	if len(poly.GetVertices()) == 0 {
		poly = face.GetBoundingPoly()
	}
	vs := poly.GetVertices()
	if len(vs) == 0 {
		return Box{}, false
	}

	rect := image.Rect(int(vs[0].GetX()), int(vs[0].GetY()), int(vs[0].GetX()), int(vs[0].GetY()))
	for _, p := range vs[1:] {
		rect = rect.Union(image.Rect(int(p.GetX()), int(p.GetY()), int(p.GetX())+1, int(p.GetY())+1))
	}
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return Box{}, false
	}

	return Box{X: rect.Min.X, Y: rect.Min.Y, W: rect.Dx(), H: rect.Dy()}, true
}

var landmarkOrder = []visionpb.FaceAnnotation_Landmark_Type{
	visionpb.FaceAnnotation_Landmark_LEFT_EYE,
	visionpb.FaceAnnotation_Landmark_RIGHT_EYE,
	visionpb.FaceAnnotation_Landmark_NOSE_TIP,
	visionpb.FaceAnnotation_Landmark_UPPER_LIP,
	visionpb.FaceAnnotation_Landmark_LOWER_LIP,
	visionpb.FaceAnnotation_Landmark_MOUTH_LEFT,
	visionpb.FaceAnnotation_Landmark_MOUTH_RIGHT,
	visionpb.FaceAnnotation_Landmark_MOUTH_CENTER,
	visionpb.FaceAnnotation_Landmark_LEFT_EAR_TRAGION,
	visionpb.FaceAnnotation_Landmark_RIGHT_EAR_TRAGION,
	visionpb.FaceAnnotation_Landmark_FOREHEAD_GLABELLA,
	visionpb.FaceAnnotation_Landmark_CHIN_GNATHION,
}

// geometry places each landmark relative to the box center in units of half
// the box size. Missing landmarks are zero.
func geometry(face *visionpb.FaceAnnotation, box Box) []float64 {
	pos := make(map[visionpb.FaceAnnotation_Landmark_Type]*visionpb.Position, len(face.GetLandmarks()))
	for _, l := range face.GetLandmarks() {
		pos[l.GetType()] = l.GetPosition()
	}

	cx := float64(box.X) + float64(box.W)/2
	cy := float64(box.Y) + float64(box.H)/2
	hw := float64(box.W) / 2
	hh := float64(box.H) / 2

	out := make([]float64, 2*len(landmarkOrder))
	for i, t := range landmarkOrder {
		p, ok := pos[t]
		if !ok || hw == 0 || hh == 0 {
			continue
		}
		out[2*i] = (float64(p.GetX()) - cx) / hw
		out[2*i+1] = (float64(p.GetY()) - cy) / hh
	}
	return out
}
