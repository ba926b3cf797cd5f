package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/toolgate/pkg/capability"
)

const simpleTextNote = "This is a simple fallback generator. For better results, use the generate tool when quotas allow."

type simpleTextArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The text prompt to generate content for"`
	Style  string `json:"style,omitempty" jsonschema:"description=Generation style,enum=creative,enum=technical,enum=simple,default=simple"`
}

var simpleTextSchema = capability.ReflectSchema(&simpleTextArgs{})

type simpleTextCapability struct {
	name string
	intn func(n int) int
}

func (c *simpleTextCapability) Description() string {
	return "Simple text generation when AI APIs are unavailable"
}

func (c *simpleTextCapability) InputSchema() map[string]interface{} {
	return simpleTextSchema
}

func (c *simpleTextCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return capability.Result{"tool": c.name, "error": "Missing 'prompt' parameter"}, nil
	}

	style := stringArg(args, "style")
	if style == "" {
		style = "simple"
	}

	responses := simpleTextTemplates(prompt)

	return capability.Result{
		"tool":   c.name,
		"prompt": prompt,
		"style":  style,
		"result": responses[c.intn(len(responses))],
		"note":   simpleTextNote,
	}, nil
}

func simpleTextTemplates(prompt string) []string {
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "python") || strings.Contains(lower, "code"):
		return []string{
			fmt.Sprintf("Here's a basic approach to %s:\n\n```python\n# Your code here\npass\n```", prompt),
			fmt.Sprintf("For %s, you might want to consider using standard Python libraries.", prompt),
			fmt.Sprintf("To implement %s, start with defining your main function and work from there.", prompt),
		}
	case strings.Contains(lower, "write") || strings.Contains(lower, "story"):
		return []string{
			fmt.Sprintf("Based on your request '%s', here's a creative response: Once upon a time...", prompt),
			fmt.Sprintf("This is an interesting topic: %s. Let me elaborate on that...", prompt),
			fmt.Sprintf("Regarding '%s', here are some thoughts to consider...", prompt),
		}
	case strings.Contains(lower, "explain") || strings.Contains(lower, "what"):
		return []string{
			fmt.Sprintf("To explain %s: This is a complex topic that involves multiple concepts.", prompt),
			fmt.Sprintf("Regarding %s: This typically refers to processes or systems that...", prompt),
			fmt.Sprintf("The concept of %s can be understood by breaking it down into components.", prompt),
		}
	default:
		return []string{
			fmt.Sprintf("Based on your prompt '%s', here's a response generated using simple templates.", prompt),
			fmt.Sprintf("Regarding '%s': This is an interesting topic that deserves further exploration.", prompt),
			fmt.Sprintf("Your request about '%s' is noted. Here's a basic response to get you started.", prompt),
		}
	}
}
