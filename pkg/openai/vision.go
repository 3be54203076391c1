package openai

import (
	"GeoDetect/internal/entity"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/sashabaranov/go-openai"
)

var (
	ErrNoAPIKey         = errors.New("OpenAI API key is required")
	ErrEmptyResponse    = errors.New("no response from OpenAI API")
	ErrNoJSONInResponse = errors.New("cannot find valid JSON in response")
)

type IVision interface {
	Detect(ctx context.Context, image []byte) ([]entity.RawDetection, error)
}

type visionClient struct {
	client *openai.Client
	model  string
	prompt string
}

// NewVisionClient talks to the OpenAI chat completions API or any server that
// speaks it when OPENAI_BASE_URL is set. A key is only required against the
// default endpoint.
func NewVisionClient() (IVision, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if apiKey == "" && baseURL == "" {
		return nil, ErrNoAPIKey
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	model := os.Getenv("OPENAI_VISION_MODEL")
	if model == "" {
		model = openai.GPT4oMini
	}

	return &visionClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		prompt: buildPrompt(entity.MilitaryClassMapping),
	}, nil
}

func buildPrompt(classes map[int]string) string {
	ids := make([]int, 0, len(classes))
	for id := range classes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	sb.WriteString("You are an object detector. Find every object in the image that belongs to one of these classes:\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "%d: %s\n", id, classes[id])
	}
	sb.WriteString(`
Reply with a JSON object only:
{"objects": [{"bbox": [x_min, y_min, x_max, y_max], "class": 2, "confidence": 0.87}]}
bbox values are fractions of the image width and height between 0 and 1. Reply {"objects": []} when nothing matches.`)

	return sb.String()
}

func (v *visionClient) Detect(ctx context.Context, img []byte) ([]entity.RawDetection, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	dataURL := "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: v.prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get response from OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	return parseDetections(resp.Choices[0].Message.Content, cfg.Width, cfg.Height)
}

type visionAnswer struct {
	Objects []struct {
		BBox       []float64 `json:"bbox"`
		Class      int       `json:"class"`
		Confidence *float64  `json:"confidence"`
	} `json:"objects"`
}

func parseDetections(response string, width, height int) ([]entity.RawDetection, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, ErrNoJSONInResponse
	}

	var answer visionAnswer
	if err := jsoniter.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	w, h := float64(width), float64(height)
	detections := make([]entity.RawDetection, 0, len(answer.Objects))
	for _, o := range answer.Objects {
		if len(o.BBox) != 4 {
			continue
		}

		conf := 1.0
		if o.Confidence != nil {
			conf = *o.Confidence
		}

		detections = append(detections, entity.RawDetection{
			BBox:       [4]float64{o.BBox[0] * w, o.BBox[1] * h, o.BBox[2] * w, o.BBox[3] * h},
			Confidence: conf,
			Class:      o.Class,
		})
	}

	return detections, nil
}
