package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnconfigured indicates that no API key was supplied, so no real
// analysis can run.
var ErrUnconfigured = errors.New("vision: estimator is not configured")

const defaultTimeout = 30 * time.Second

const analysisPrompt = `Analyze this food photo and estimate the nutritional content. Be specific about the food items you see.

Return ONLY a JSON object in this exact format, no markdown or extra text:
{
  "food_name": "Brief description of the food (e.g., 'Grilled chicken salad with ranch dressing')",
  "calories": <number>,
  "protein": <grams as number>,
  "carbs": <grams as number>,
  "fat": <grams as number>
}

Be realistic with portion sizes and calorie estimates. If you can't identify the food clearly, make your best guess.`

// OpenAIConfig carries construction parameters for the OpenAI-backed
// estimator. BaseURL is overridable for tests.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIEstimator sends photos to the OpenAI vision endpoint and
// parses the model's JSON reply into an Estimate.
type OpenAIEstimator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIEstimator returns an estimator for the given configuration.
// An empty API key yields an estimator whose calls fail with
// ErrUnconfigured, leaving fallback substitution to the caller.
func NewOpenAIEstimator(cfg OpenAIConfig) *OpenAIEstimator {
	estimator := &OpenAIEstimator{
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if estimator.model == "" {
		estimator.model = openai.GPT4o
	}
	if estimator.timeout <= 0 {
		estimator.timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return estimator
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	estimator.client = openai.NewClientWithConfig(clientConfig)
	return estimator
}

// Estimate implements Estimator. The upstream call is bounded by the
// configured timeout; any transport, status, or parse failure is
// returned as an error so the caller can substitute the fallback.
func (e *OpenAIEstimator) Estimate(ctx context.Context, imageJPEG []byte) (Estimate, error) {
	if e.client == nil {
		return Estimate{}, ErrUnconfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageJPEG)
	response, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: analysisPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("vision: chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return Estimate{}, fmt.Errorf("vision: empty completion response")
	}

	return parseEstimate(response.Choices[0].Message.Content)
}

// parseEstimate decodes the model reply, tolerating markdown code
// fences around the JSON object.
func parseEstimate(content string) (Estimate, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var parsed struct {
		FoodName string  `json:"food_name"`
		Calories float64 `json:"calories"`
		Protein  float64 `json:"protein"`
		Carbs    float64 `json:"carbs"`
		Fat      float64 `json:"fat"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return Estimate{}, fmt.Errorf("vision: parsing model reply: %w", err)
	}

	estimate := Estimate{
		FoodName: parsed.FoodName,
		Calories: roundNonNegative(parsed.Calories),
		Protein:  roundNonNegative(parsed.Protein),
		Carbs:    roundNonNegative(parsed.Carbs),
		Fat:      roundNonNegative(parsed.Fat),
	}
	if estimate.FoodName == "" {
		estimate.FoodName = "Unknown food"
	}
	return estimate, nil
}

func roundNonNegative(value float64) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	return rounded
}
