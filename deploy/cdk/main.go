package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if name := os.Getenv("WASTECAL_NAME"); name != "" {
		cfg.Name = name
	}
	cfg.GoogleCredentialsSecret = os.Getenv("WASTECAL_GOOGLE_SECRET")
	cfg.DestroyOnDelete = os.Getenv("WASTECAL_DESTROY_ON_DELETE") == "true"

	stackName := "WastecalStack"
	if name := os.Getenv("WASTECAL_STACK_NAME"); name != "" {
		stackName = name
	}

	NewWastecalStack(app, stackName, cfg)
	app.Synth(nil)
}
