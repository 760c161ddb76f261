// Package tooldecl converts the integration catalogue into OpenAI function
// declarations so a chat model can request tool invocations by name.
package tooldecl

import (
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/conciergehq/concierge/internal/integration"
)

// Declarations flattens the tools of the given integrations into chat
// completion tool parameters, preserving catalogue order. Tool names are
// globally unique across integrations, so no prefixing is applied.
func Declarations(descs []integration.Descriptor) []oai.ChatCompletionToolParam {
	var params []oai.ChatCompletionToolParam
	for _, desc := range descs {
		for _, tool := range desc.Tools {
			params = append(params, declare(tool))
		}
	}
	return params
}

func declare(tool integration.ToolInfo) oai.ChatCompletionToolParam {
	return oai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: param.NewOpt(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		},
	}
}
