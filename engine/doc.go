// Package engine wires the vectorflow subsystems together: the store,
// the extension registry, the step middleware chain, the worker pools
// and workflow runners, the job lifecycle manager and the bulk
// coordinator.
//
// Engine sits above every subsystem package and below the application
// layer (service, api, the CLI), so subsystems never import each other
// in cycles: workflow and job define emitter and observer interfaces,
// ext.Registry implements the hooks, and the engine adapts one to the
// other.
//
// # Building an Engine
//
//	s, _ := store.Open(ctx, "sqlite", "vectorflow.db", logger)
//	eng, err := engine.Build(s,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMeterProvider(mp),
//	)
//
// # Registering Workflows
//
// Job workflows run on Runner(); sub-jobs started through external.Call
// run on SubRunner(), which has its own worker pool:
//
//	engine.RegisterSubWorkflow(eng, embedText)
//	engine.RegisterWorkflow(eng, createVector)
//
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(shutdownCtx)
//
// # Options
//
//   - [WithConfig]: deployment configuration (concurrency, namespace, bulk limits)
//   - [WithLogger]: structured logger for every subsystem
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a step middleware after the default stack
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
