package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CompositeAction runs its children in order. Every child runs even when an
// earlier one fails; the errors are joined.
type CompositeAction struct {
	Children []Action
}

// Composite creates a CompositeAction. Nil children are skipped.
func Composite(children ...Action) *CompositeAction {
	kept := make([]Action, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &CompositeAction{Children: kept}
}

func (c *CompositeAction) Run(ctx context.Context, call Call) error {
	var errs []error
	for i, child := range c.Children {
		if err := child.Run(ctx, call.WithExtra()); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, child, err))
		}
	}
	return errors.Join(errs...)
}

func (c *CompositeAction) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	return "seq:" + strings.Join(parts, "|")
}
