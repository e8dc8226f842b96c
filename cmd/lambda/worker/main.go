// worker Lambda materializes calendar streams and runs the deprecation sweep.
// Invoked by EventBridge every 5 minutes for sync passes and on a separate
// rule with detail-type "wastecal.cleanup" for the sweep.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	intlambda "github.com/dwsmith1983/wastecal/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context, ev events.CloudWatchEvent) (intlambda.WorkerResult, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.WorkerResult{}, err
	}
	return intlambda.HandleScheduled(ctx, d, ev)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
