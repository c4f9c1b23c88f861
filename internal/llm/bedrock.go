package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/deckforge/orchestrator/internal/session"
)

// BedrockRuntime mirrors the subset of *bedrockruntime.Client the adapter
// needs, so tests can substitute a fake.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockOptions configures the Bedrock-backed Provider.
type BedrockOptions struct {
	Runtime      BedrockRuntime
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

// BedrockProvider implements Provider on top of the AWS Bedrock Converse API.
type BedrockProvider struct {
	runtime      BedrockRuntime
	defaultModel string
	maxTokens    int
	temperature  float32
}

// NewBedrockProvider constructs a Provider backed by Bedrock Converse.
func NewBedrockProvider(opts BedrockOptions) (*BedrockProvider, error) {
	if opts.Runtime == nil {
		return nil, errors.New("llm: bedrock runtime is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("llm: bedrock default model is required")
	}
	return &BedrockProvider{
		runtime:      opts.Runtime,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete implements Provider.
func (p *BedrockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: encodeBedrockMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	input.InferenceConfig = bedrockInferenceConfig(p, req)

	out, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock converse: %w", err)
	}
	return translateBedrockResponse(out)
}

func bedrockInferenceConfig(p *BedrockProvider, req Request) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	temp := req.Temperature
	if temp == 0 {
		temp = p.temperature
	}
	cfg.Temperature = aws.Float32(temp)

	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = p.maxTokens
	}
	if maxTok > 0 {
		maxTokInt32 := int32(maxTok)
		cfg.MaxTokens = aws.Int32(maxTokInt32)
	}
	return cfg
}

func encodeBedrockMessages(msgs []Message) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		role := brtypes.ConversationRoleUser
		if m.Role == session.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

func translateBedrockResponse(out *bedrockruntime.ConverseOutput) (Response, error) {
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("llm: bedrock response missing message content")
	}

	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}

	resp := Response{Text: text, StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

var _ Provider = (*BedrockProvider)(nil)
