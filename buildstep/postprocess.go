package buildstep

import (
	"fmt"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/phase"
)

// RunPostProcess invokes a post-process action against step, recovers a
// panic as a plain error, and commits whatever the action staged to
// disk. A post-process action is not bound to a pre-declared output
// set (§4.2) — everything it writes becomes an output, recorded against
// its owning anchor by the caller.
func RunPostProcess(step *Step, run func(phase.Step) error) (outputs []asset.ID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if runErr := run(step); runErr != nil {
		for id := range step.staged {
			step.rw.Discard(id)
		}
		return nil, runErr
	}

	for id := range step.staged {
		if _, cerr := step.rw.Commit(id, step.phase, step.hidden); cerr != nil {
			return nil, cerr
		}
		outputs = append(outputs, id)
	}
	return outputs, nil
}
