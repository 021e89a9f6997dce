package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ErrNoRoute is returned when the classifier picks no known route and no
// default route is configured.
var ErrNoRoute = errors.New("no matching route")

// DefaultClassifierPrompt asks the model to pick a route name. It is
// rendered with the keys input and routes.
const DefaultClassifierPrompt = `Classify the request below into exactly one of these routes:
{{range .routes}}- {{.name}}: {{.description}}
{{end}}
Respond with the route name only.

Request: {{input}}`

// Route is one branch of a Router. A route runs Agent when set; otherwise
// PromptTemplate is rendered with the key input and sent to the model.
type Route struct {
	Name           string
	Description    string
	Agent          core.Agent
	PromptTemplate string
}

// RouterOptions configure a Router.
type RouterOptions struct {
	ClassifierPrompt string
	// DefaultRoute handles input the classifier could not place.
	DefaultRoute string
	Description  string
	Logger       logging.Logger
}

// Router classifies input with the model and dispatches it to one route.
type Router struct {
	base
	routes []Route
	opts   RouterOptions
}

// NewRouter creates a router over routes.
func NewRouter(name string, llm Completer, routes []Route, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{
		ClassifierPrompt: DefaultClassifierPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		base:   newBase(name, opts.Description, llm, opts.Logger),
		routes: routes,
		opts:   opts,
	}
}

// AddRoute registers another route and returns the router.
func (r *Router) AddRoute(route Route) *Router {
	r.routes = append(r.routes, route)
	return r
}

// Run implements core.Agent.
func (r *Router) Run(ctx context.Context, input string) *async.Task[core.Result] {
	return r.run(ctx, "router", func(ctx context.Context) (core.Result, error) {
		if len(r.routes) == 0 {
			return core.Result{}, ErrNoSteps
		}

		list := make([]map[string]any, len(r.routes))
		for i, rt := range r.routes {
			list[i] = map[string]any{"name": rt.Name, "description": rt.Description}
		}

		prompt, err := util.RenderTemplate(r.opts.ClassifierPrompt, map[string]any{"input": input, "routes": list})
		if err != nil {
			return core.Result{}, fmt.Errorf("classifier prompt: %w", err)
		}

		choice, err := r.complete(ctx, prompt)
		if err != nil {
			return core.Result{}, fmt.Errorf("classify: %w", err)
		}

		route, ok := r.match(choice)
		if !ok {
			return core.Result{}, fmt.Errorf("%w: %q", ErrNoRoute, strings.TrimSpace(choice))
		}

		classify := core.NewStep("classify").Complete(route.Name)
		r.EmitStep(classify)
		r.LogStatus("routing to " + route.Name)

		res, err := r.dispatch(ctx, route, input)
		if err != nil {
			return core.Result{}, fmt.Errorf("route %s: %w", route.Name, err)
		}

		res.Steps = append([]core.Step{classify}, res.Steps...)
		if res.Data == nil {
			res.Data = map[string]any{}
		}
		res.Data["route"] = route.Name
		return res, nil
	})
}

func (r *Router) dispatch(ctx context.Context, route Route, input string) (core.Result, error) {
	if route.Agent != nil {
		return route.Agent.Run(ctx, input).Await(ctx)
	}

	tmpl := route.PromptTemplate
	if tmpl == "" {
		tmpl = "{{input}}"
	}
	prompt, err := util.RenderTemplate(tmpl, map[string]any{"input": input})
	if err != nil {
		return core.Result{}, err
	}
	out, err := r.complete(ctx, prompt)
	if err != nil {
		return core.Result{}, err
	}

	step := core.NewStep(route.Name).Complete(out)
	r.EmitStep(step)
	return core.Result{Answer: out, Steps: []core.Step{step}, Iterations: 1}, nil
}

// match resolves the classifier output to a route: an exact name first,
// then the first route whose name appears in the output, then the default.
func (r *Router) match(choice string) (Route, bool) {
	c := strings.ToLower(strings.Trim(strings.TrimSpace(choice), "\"'`.*"))

	for _, rt := range r.routes {
		if strings.ToLower(rt.Name) == c {
			return rt, true
		}
	}
	for _, rt := range r.routes {
		if strings.Contains(c, strings.ToLower(rt.Name)) {
			return rt, true
		}
	}
	if r.opts.DefaultRoute != "" {
		for _, rt := range r.routes {
			if rt.Name == r.opts.DefaultRoute {
				return rt, true
			}
		}
	}
	return Route{}, false
}
