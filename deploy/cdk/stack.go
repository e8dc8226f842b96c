package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	intlambda "github.com/dwsmith1983/wastecal/internal/lambda"
)

// configLayerDir is where the config layer is mounted. The layer zip holds
// wastecal/wastecal.yaml plus any waste type files; the yaml reads the
// bucket, base URL and topic from the environment variables set below.
const configLayerDir = "/opt/wastecal"

func NewWastecalStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Alert topic
	topic := awssns.NewTopic(stack, jsii.String("AlertTopic"), &awssns.TopicProps{
		TopicName: jsii.String(cfg.Name + "-alerts"),
	})

	// Feed bucket: objects are the public .ics subscriptions.
	bucket := awss3.NewBucket(stack, jsii.String("FeedBucket"), &awss3.BucketProps{
		PublicReadAccess: jsii.Bool(true),
		BlockPublicAccess: awss3.NewBlockPublicAccess(&awss3.BlockPublicAccessOptions{
			BlockPublicAcls:       jsii.Bool(true),
			IgnorePublicAcls:      jsii.Bool(true),
			BlockPublicPolicy:     jsii.Bool(false),
			RestrictPublicBuckets: jsii.Bool(false),
		}),
		RemovalPolicy: removalPolicy(cfg.DestroyOnDelete),
	})
	baseURL := awscdk.Fn_Join(jsii.String(""), &[]*string{
		jsii.String("https://"), bucket.BucketRegionalDomainName(),
	})

	// Config layer
	layer := awslambda.NewLayerVersion(stack, jsii.String("ConfigLayer"), &awslambda.LayerVersionProps{
		Code:                    awslambda.Code_FromAsset(jsii.String(cfg.ConfigDistDir), nil),
		CompatibleRuntimes:      &[]awslambda.Runtime{awslambda.Runtime_PROVIDED_AL2023()},
		CompatibleArchitectures: &[]awslambda.Architecture{awslambda.Architecture_ARM_64()},
		Description:             jsii.String("wastecal.yaml and waste type definitions"),
	})

	env := &map[string]*string{
		"WASTECAL_CONFIG_DIR":      jsii.String(configLayerDir),
		"WASTECAL_ALERT_TOPIC_ARN": topic.TopicArn(),
		"WASTECAL_FEED_BUCKET":     bucket.BucketName(),
		"WASTECAL_FEED_BASE_URL":   baseURL,
	}
	if cfg.GoogleCredentialsSecret != "" {
		(*env)["WASTECAL_GOOGLE_SECRET"] = jsii.String(cfg.GoogleCredentialsSecret)
	}

	timeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout))
	memorySize := jsii.Number(cfg.MemorySize)
	logRetention := logRetentionDays(cfg.LogRetentionDays)

	makeFn := func(name string) awslambda.Function {
		return awslambda.NewFunction(stack, jsii.String(name), &awslambda.FunctionProps{
			FunctionName: jsii.String(cfg.Name + "-" + name),
			Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
			Handler:      jsii.String("bootstrap"),
			Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, name)), nil),
			Architecture: awslambda.Architecture_ARM_64(),
			MemorySize:   memorySize,
			Timeout:      timeout,
			Environment:  env,
			Layers:       &[]awslambda.ILayerVersion{layer},
			LogRetention: logRetention,
		})
	}

	// One worker instance at a time; the sync pass is not meant to overlap.
	workerFn := awslambda.NewFunction(stack, jsii.String("worker"), &awslambda.FunctionProps{
		FunctionName:                 jsii.String(cfg.Name + "-worker"),
		Runtime:                      awslambda.Runtime_PROVIDED_AL2023(),
		Handler:                      jsii.String("bootstrap"),
		Code:                         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, "worker")), nil),
		Architecture:                 awslambda.Architecture_ARM_64(),
		MemorySize:                   memorySize,
		Timeout:                      timeout,
		Environment:                  env,
		Layers:                       &[]awslambda.ILayerVersion{layer},
		LogRetention:                 logRetention,
		ReservedConcurrentExecutions: jsii.Number(1),
	})
	ingestFn := makeFn("ingest")

	// Grants
	bucket.GrantReadWrite(workerFn, nil)
	bucket.GrantRead(ingestFn, nil)
	topic.GrantPublish(workerFn)
	topic.GrantPublish(ingestFn)
	if cfg.GoogleCredentialsSecret != "" {
		secret := awssecretsmanager.Secret_FromSecretNameV2(stack, jsii.String("GoogleCredentials"),
			jsii.String(cfg.GoogleCredentialsSecret))
		secret.GrantRead(workerFn, nil)
		secret.GrantRead(ingestFn, nil)
	}

	// Schedules
	awsevents.NewRule(stack, jsii.String("SyncSchedule"), &awsevents.RuleProps{
		Description: jsii.String("Materialize calendar streams"),
		Schedule:    awsevents.Schedule_Rate(awscdk.Duration_Minutes(jsii.Number(cfg.SyncRateMinutes))),
		Targets:     &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(workerFn, nil)},
	})
	awsevents.NewRule(stack, jsii.String("CleanupSchedule"), &awsevents.RuleProps{
		Description: jsii.String("Retire abandoned calendar streams"),
		Schedule:    awsevents.Schedule_Rate(awscdk.Duration_Hours(jsii.Number(cfg.CleanupRateHours))),
		Targets: &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(workerFn, &awseventstargets.LambdaFunctionProps{
			Event: awsevents.RuleTargetInput_FromObject(map[string]interface{}{
				"source":      cfg.Name,
				"detail-type": intlambda.DetailTypeCleanup,
			}),
		})},
	})

	// Outputs
	awscdk.NewCfnOutput(stack, jsii.String("TopicArn"), &awscdk.CfnOutputProps{
		Value: topic.TopicArn(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("FeedBucket"), &awscdk.CfnOutputProps{
		Value: bucket.BucketName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("IngestFunction"), &awscdk.CfnOutputProps{
		Value: ingestFn.FunctionName(),
	})

	return stack
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 5:
		return awslogs.RetentionDays_FIVE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 60:
		return awslogs.RetentionDays_TWO_MONTHS
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_ONE_WEEK
	}
}
