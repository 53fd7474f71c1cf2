// Package datateam provides a high-level façade over the orchestration
// engine and the built-in data team. Most applications interact with this
// package by:
//  1. Creating a Team via New() with a model backend
//  2. Running queries asynchronously (RunStream) or synchronously (Run)
//
// The façade wires the default specialists (Data_Analyst with the
// safety-gated analysis tool, Business_Strategist with structured output)
// and the supervisor router, then delegates orchestration to engine.Engine.
// All defaults are safe for local development and testing.
package datateam

import (
	"context"

	"github.com/tshapedconsultant/datateam/agent"
	"github.com/tshapedconsultant/datateam/code"
	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/engine"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/tool"
)

// Options configures the Team.
type Options struct {
	// Config holds the orchestration limits (iteration cap, message window,
	// completion window).
	Config engine.Config

	// Validator is the code-safety gate for the analysis tool. Defaults to
	// the static denylist validator.
	Validator code.Validator

	// Executor runs validated analysis code. Defaults to the demo executor.
	Executor code.Executor

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Team is the ready-made supervisor/worker ensemble: a Data_Analyst, a
// Business_Strategist, and the supervisor routing between them.
type Team struct {
	engine *engine.Engine
}

// New creates a Team over the given model backend with optional overrides.
func New(backend model.Backend, optFns ...func(o *Options)) *Team {
	opts := Options{
		Config: engine.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Validator == nil {
		opts.Validator = code.NewStaticValidator(nil, func(o *code.StaticValidatorOptions) {
			o.Logger = opts.Logger
		})
	}

	analysisTool := tool.NewAnalysisTool(opts.Validator, func(o *tool.AnalysisToolOptions) {
		o.Executor = opts.Executor
		o.Logger = opts.Logger
	})

	analyst := agent.NewDataAnalyst(backend, analysisTool, opts.Logger)
	strategist := agent.NewBusinessStrategist(backend, opts.Logger)
	supervisor := agent.NewSupervisor(backend,
		[]string{analyst.Name(), strategist.Name()},
		func(o *agent.SupervisorOptions) { o.Logger = opts.Logger },
	)

	eng := engine.New(supervisor, []*agent.Worker{analyst, strategist}, func(o *engine.Options) {
		o.Config = opts.Config
		o.Logger = opts.Logger
	})

	info := backend.Info()
	opts.Logger.Info("team.created",
		"provider", info.Provider, "model", info.Name,
		"max_iterations", opts.Config.MaxIterations)

	return &Team{engine: eng}
}

// RunStream executes the workflow for the given query and streams progress
// events as they occur. The channel closes after the terminal event.
func (t *Team) RunStream(ctx context.Context, query string) <-chan core.StreamEvent {
	return t.engine.RunStream(ctx, query)
}

// Run executes the workflow synchronously and returns all emitted events.
func (t *Team) Run(ctx context.Context, query string) ([]core.StreamEvent, error) {
	return t.engine.Run(ctx, query)
}
