// ingest Lambda accepts a scraped schedule batch, stores it and reconciles
// schedule groups. Invoked directly by the scraper.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	intlambda "github.com/dwsmith1983/wastecal/internal/lambda"
	"github.com/dwsmith1983/wastecal/pkg/types"
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

func handler(ctx context.Context, b types.Batch) (intlambda.IngestResult, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.IngestResult{}, err
	}
	return intlambda.HandleIngest(ctx, d, b)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
