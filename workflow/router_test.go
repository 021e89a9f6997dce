package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifier(choice string) *funcCompleter {
	return complete(func(p string) (string, error) {
		if strings.HasPrefix(p, "Classify") {
			return choice, nil
		}
		return "handled: " + p, nil
	})
}

func TestRouter_DispatchesToPromptRoute(t *testing.T) {
	llm := classifier(" Billing.\n")
	r := NewRouter("support", llm, []Route{
		{Name: "billing", Description: "Invoices and payments", PromptTemplate: "Billing question: {{input}}"},
		{Name: "tech", Description: "Technical issues"},
	})

	res, err := r.Run(context.Background(), "my invoice is wrong").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "handled: Billing question: my invoice is wrong", res.Answer)
	assert.Equal(t, "billing", res.Data["route"])
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "classify", res.Steps[0].Description)

	prompt := llm.Prompts()[0]
	assert.Contains(t, prompt, "- billing: Invoices and payments")
	assert.Contains(t, prompt, "- tech: Technical issues")
	assert.Contains(t, prompt, "Request: my invoice is wrong")
}

func TestRouter_DispatchesToAgentRoute(t *testing.T) {
	tech := &stubAgent{name: "tech-agent"}
	r := NewRouter("support", classifier("The route is tech"), nil).
		AddRoute(Route{Name: "billing"}).
		AddRoute(Route{Name: "tech", Agent: tech})

	res, err := r.Run(context.Background(), "wifi down").Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tech-agent did wifi down", res.Answer)
	assert.Equal(t, []string{"wifi down"}, tech.inputs)
}

func TestRouter_DefaultRoute(t *testing.T) {
	r := NewRouter("support", classifier("weather"), []Route{
		{Name: "billing"},
		{Name: "general"},
	}, func(o *RouterOptions) { o.DefaultRoute = "general" })

	res, err := r.Run(context.Background(), "hello").Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "general", res.Data["route"])
	assert.Equal(t, "handled: hello", res.Answer)
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter("support", classifier("weather"), []Route{{Name: "billing"}})

	_, err := r.Run(context.Background(), "hello").Await(context.Background())
	assert.ErrorIs(t, err, ErrNoRoute)
}
