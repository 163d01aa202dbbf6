package filler

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// ParallelProcessor runs one handler per output concurrently.
type ParallelProcessor struct {
	log *logrus.Entry
}

// ProcessOutputsInParallel calls handler for every output and returns the
// first error. A single output runs inline.
func (pp *ParallelProcessor) ProcessOutputsInParallel(
	ctx context.Context,
	outputs []types.OutputDescription,
	handler func(ctx context.Context, idx int, output types.OutputDescription) error,
) error {
	if len(outputs) == 0 {
		return fmt.Errorf("no outputs to process")
	}
	if len(outputs) == 1 {
		return handler(ctx, 0, outputs[0])
	}

	pp.log.WithField("outputs", len(outputs)).Debug("processing outputs in parallel")

	var wg sync.WaitGroup
	errChan := make(chan error, len(outputs))

	for i, output := range outputs {
		wg.Add(1)
		go func(idx int, out types.OutputDescription) {
			defer wg.Done()
			if err := handler(ctx, idx, out); err != nil {
				errChan <- fmt.Errorf("output %d failed: %w", idx+1, err)
			}
		}(i, output)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}
	return nil
}

// ProcessWithTimeout returns when operation finishes or ctx is done,
// whichever comes first.
func (pp *ParallelProcessor) ProcessWithTimeout(
	ctx context.Context,
	operation func(ctx context.Context) error,
	timeoutMsg string,
) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- operation(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s timed out: %w", timeoutMsg, ctx.Err())
	}
}
