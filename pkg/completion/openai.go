package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Service = (*OpenAI)(nil)

const (
	openaiProvider = "openai"

	oaiFinishReasonStop          = "stop"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonContentFilter = "content_filter"
)

// OpenAI implements Service with the OpenAI chat completions API or any
// compatible endpoint.
type OpenAI struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	// Params are defaults for fields a request leaves zero.
	Params SamplingParams `json:"params,omitzero"`

	// UseSystemRole sends Prompt.System as a system message. Otherwise it is
	// prepended to the user message.
	UseSystemRole bool `json:"use_system_role,omitzero"`
}

func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	params := o.chatCompletion(req)
	sb := NewStreamBuilder(32)
	go func() {
		if err := oaiPull(sb, o.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(serviceError(openaiProvider, oaiUnwrap(err)))
		}
	}()
	return sb.Stream(), nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.Client.Chat.Completions.New(ctx, o.chatCompletion(req))
	if err != nil {
		return "", serviceError(openaiProvider, oaiUnwrap(err))
	}
	if len(resp.Choices) == 0 {
		return "", serviceError(openaiProvider, errors.New("no choices"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", blockedError(openaiProvider, choice.Message.Refusal)
	}
	switch choice.FinishReason {
	case oaiFinishReasonStop, "":
	case oaiFinishReasonLength:
		slog.Debug("completion/openai: truncated by length", "model", o.Model)
	case oaiFinishReasonContentFilter:
		return "", blockedError(openaiProvider, "content filter")
	default:
		return "", serviceError(openaiProvider, fmt.Errorf("unexpected finish reason: %s", choice.FinishReason))
	}
	return choice.Message.Content, nil
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if err := sb.Add(choice.Delta.Content); err != nil {
			return err
		}
		switch choice.FinishReason {
		case "":
			// more to come
		case oaiFinishReasonStop, oaiFinishReasonLength:
			return sb.Done()
		case oaiFinishReasonContentFilter:
			return blockedError(openaiProvider, "content filter")
		default:
			return fmt.Errorf("unexpected finish reason: %s", choice.FinishReason)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return sb.Done()
}

func oaiUnwrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Message, apiErr.StatusCode)
	}
	return err
}

func (o *OpenAI) chatCompletion(req Request) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	user := req.Prompt.Text
	if req.Prompt.System != "" {
		if o.UseSystemRole {
			msgs = append(msgs, openai.SystemMessage(req.Prompt.System))
		} else {
			user = req.Prompt.System + "\n\n" + user
		}
	}
	msgs = append(msgs, openai.UserMessage(user))

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.Model,
	}
	p := mergeParams(req.Params, o.Params)
	if p.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(p.Temperature))
	}
	if p.TopP > 0 {
		params.TopP = param.NewOpt(float64(p.TopP))
	}
	if p.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(p.MaxTokens))
	}
	return params
}
