package gemini

import (
	"GeoDetect/internal/entity"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/api/option"
)

var (
	ErrNoAPIKey         = errors.New("gemini API key is required")
	ErrEmptyResponse    = errors.New("no response from Gemini API")
	ErrNoJSONInResponse = errors.New("cannot find valid JSON in response")
)

type IGemini interface {
	Detect(ctx context.Context, image []byte) ([]entity.RawDetection, error)
	Close()
}

type geminiClient struct {
	modelName string
	client    *genai.Client
	prompt    string
}

func NewGeminiClient() (IGemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	modelName := os.Getenv("GEMINI_MODEL_NAME")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &geminiClient{
		modelName: modelName,
		client:    client,
		prompt:    buildPrompt(entity.MilitaryClassMapping),
	}, nil
}

func buildPrompt(classes map[int]string) string {
	ids := make([]int, 0, len(classes))
	for id := range classes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	sb.WriteString("Detect every object in this image that belongs to one of these classes:\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "%d: %s\n", id, classes[id])
	}
	sb.WriteString(`
Answer with JSON only, in this exact shape:
{"detections": [{"box_2d": [ymin, xmin, ymax, xmax], "class": 2, "confidence": 0.87}]}
box_2d values are integers normalized to 0-1000. Use an empty list when nothing matches.`)

	return sb.String()
}

func (g *geminiClient) Detect(ctx context.Context, img []byte) ([]entity.RawDetection, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	model := g.client.GenerativeModel(g.modelName)
	model.ResponseMIMEType = "application/json"

	res, err := model.GenerateContent(ctx, genai.Text(g.prompt), genai.ImageData(imageFormat(img), img))
	if err != nil {
		return nil, err
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, errors.New("unexpected response format from Gemini API")
	}

	return parseDetections(string(text), cfg.Width, cfg.Height)
}

func (g *geminiClient) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// imageFormat returns the short format name genai.ImageData expects.
func imageFormat(img []byte) string {
	switch http.DetectContentType(img) {
	case "image/png":
		return "png"
	default:
		return "jpeg"
	}
}

type geminiAnswer struct {
	Detections []struct {
		Box2D      []float64 `json:"box_2d"`
		Class      int       `json:"class"`
		Confidence *float64  `json:"confidence"`
	} `json:"detections"`
}

func parseDetections(response string, width, height int) ([]entity.RawDetection, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, ErrNoJSONInResponse
	}

	var answer geminiAnswer
	if err := jsoniter.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	detections := make([]entity.RawDetection, 0, len(answer.Detections))
	for _, d := range answer.Detections {
		if len(d.Box2D) != 4 {
			continue
		}

		conf := 1.0
		if d.Confidence != nil {
			conf = *d.Confidence
		}

		ymin, xmin, ymax, xmax := d.Box2D[0], d.Box2D[1], d.Box2D[2], d.Box2D[3]
		detections = append(detections, entity.RawDetection{
			BBox: [4]float64{
				xmin / 1000 * float64(width),
				ymin / 1000 * float64(height),
				xmax / 1000 * float64(width),
				ymax / 1000 * float64(height),
			},
			Confidence: conf,
			Class:      d.Class,
		})
	}

	return detections, nil
}
