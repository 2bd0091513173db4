// Package bedrock provides a model.Model for Anthropic models hosted on AWS
// Bedrock, using the InvokeModel API with the Anthropic messages body.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/roundtable/model"
)

// InvokeModelAPI is the subset of *bedrockruntime.Client the adapter uses.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	ModelID     string
	Region      string
	MaxTokens   int
	Temperature *float64
}

// Model invokes a Bedrock hosted Anthropic model.
type Model struct {
	client InvokeModelAPI
	opts   Options
}

func defaultOptions() Options {
	return Options{
		ModelID:   "anthropic.claude-3-5-sonnet-20240620-v1:0",
		MaxTokens: 1024,
	}
}

// NewModel loads the default AWS configuration and creates the runtime client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Model{client: bedrockruntime.NewFromConfig(cfg), opts: opts}, nil
}

// NewModelFromClient creates a model from an existing runtime client.
func NewModelFromClient(client InvokeModelAPI, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type invokeBody struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Messages         []message `json:"messages"`
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(invokeBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        m.opts.MaxTokens,
		Temperature:      m.opts.Temperature,
		Messages:         []message{{Role: "user", Content: []textBlock{{Type: "text", Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: encode request: %w", err)
	}

	resp, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.opts.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			return "", &model.StatusError{Provider: "bedrock", StatusCode: re.HTTPStatusCode(), Body: re.Err.Error()}
		}
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	if msg := gjson.GetBytes(resp.Body, "error"); msg.Exists() {
		return "", fmt.Errorf("bedrock api error: %s", msg.String())
	}

	var sb strings.Builder
	gjson.GetBytes(resp.Body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
		return true
	})
	return sb.String(), nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info { return model.Info{Name: m.opts.ModelID, Provider: "bedrock"} }
