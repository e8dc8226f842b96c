package main

// StackConfig holds configuration for the wastecal CDK stack.
type StackConfig struct {
	Name             string
	MemorySize       float64
	Timeout          float64
	LambdaDistDir    string
	ConfigDistDir    string
	SyncRateMinutes  float64
	CleanupRateHours float64
	LogRetentionDays float64
	DestroyOnDelete  bool

	// GoogleCredentialsSecret names a Secrets Manager secret holding the
	// service-account JSON. Empty for the icsfeed backend.
	GoogleCredentialsSecret string
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		Name:             "wastecal",
		MemorySize:       256,
		Timeout:          600,
		LambdaDistDir:    "../dist/lambda",
		ConfigDistDir:    "../dist/config",
		SyncRateMinutes:  5,
		CleanupRateHours: 1,
		LogRetentionDays: 7,
	}
}
