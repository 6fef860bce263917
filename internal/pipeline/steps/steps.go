package steps

import "github.com/thismatters/django-operator/internal/pipeline"

// All returns the ten migration steps in execution order, the sequence
// pipeline.New wires into the controller's single Pipeline.
func All() []pipeline.Step {
	return []pipeline.Step{
		StartMgmt{},
		AwaitMgmt{},
		startApp(),
		awaitApp(),
		startWorker(),
		awaitWorker(),
		startBeat(),
		awaitBeat(),
		MigrateService{},
		Cleanup{},
	}
}
