package tool

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/expr-lang/expr"
)

type calculatorArgs struct {
	Expression string `json:"expression" description:"Arithmetic expression, e.g. (2+3)*4.5 or max(1, 2)^2"`
}

// NewCalculatorTool returns a tool evaluating arithmetic expressions. Division
// is always performed on floats.
func NewCalculatorTool(optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionToolFromStruct(
		"calculator",
		"Evaluate an arithmetic expression and return the numeric result",
		calculatorArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			input, _ := args["expression"].(string)
			return Calculate(input)
		},
		optFns...,
	)
}

// Calculate evaluates a numeric expression without variables. Besides the
// arithmetic operators the math builtins of expr (abs, ceil, floor, round,
// min, max) are available.
func Calculate(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(input, expr.Env(map[string]any{}), expr.AsFloat64())
	if err != nil {
		return 0, fmt.Errorf("invalid expression %q: %w", input, err)
	}

	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", input, err)
	}

	f, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q is not numeric", input)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expression %q has no finite result", input)
	}
	return f, nil
}

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" description:"IANA timezone name, defaults to UTC"`
}

// NewCurrentTimeTool returns a tool reporting the current time in RFC 3339.
func NewCurrentTimeTool(optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionToolFromStruct(
		"current_time",
		"Return the current date and time, optionally in a given timezone",
		currentTimeArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			loc := time.UTC
			if tz, _ := args["timezone"].(string); tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", tz)
				}
				loc = l
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
		optFns...,
	)
}
