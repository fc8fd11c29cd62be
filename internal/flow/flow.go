package flow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// Step is one provisioning call. Undo may be nil.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Flow runs steps in order. When a step fails, the steps already done are
// undone in reverse order.
type Flow struct {
	name  string
	steps []Step
}

func New(name string) *Flow {
	return &Flow{name: name}
}

func (f *Flow) Add(steps ...Step) *Flow {
	f.steps = append(f.steps, steps...)
	return f
}

// Names returns the step names in execution order.
func (f *Flow) Names() []string {
	names := make([]string, 0, len(f.steps))
	for _, s := range f.steps {
		names = append(names, s.Name)
	}
	return names
}

// Run executes the flow. Undo failures are logged; the error of the failed
// step is returned.
func (f *Flow) Run(ctx context.Context) error {
	ctx = log.WithModule(ctx, f.name)
	for i, step := range f.steps {
		log.G(ctx).WithField("step", step.Name).Debug("running step")
		if err := step.Do(ctx); err != nil {
			f.revert(ctx, i)
			return errors.Wrapf(err, "%s: step %s failed", f.name, step.Name)
		}
	}
	return nil
}

func (f *Flow) revert(ctx context.Context, failed int) {
	for i := failed - 1; i >= 0; i-- {
		step := f.steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			log.G(ctx).WithError(err).WithField("step", step.Name).Error("failed to revert step")
		}
	}
}
