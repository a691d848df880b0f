// Command tus-upload uploads files to a tus server. Inputs are read from environment variables.
package main

import (
	"context"
	"os"

	"github.com/bitrise-io/go-steputils/v2/export"
	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.NewLogger()
	envRepo := env.NewRepository()
	exporter := export.NewExporter(command.NewFactory(envRepo))

	step := newUploadStep(envRepo, logger, pathutil.NewPathModifier(), pathutil.NewPathChecker(), &exporter)

	config, err := step.ProcessConfig()
	if err != nil {
		logger.Errorf("Failed to process inputs: %s", err)
		return 1
	}

	result, err := step.Run(context.Background(), config)
	if err != nil {
		logger.Errorf("Upload failed: %s", err)
		return 1
	}

	if err := step.Export(result); err != nil {
		logger.Errorf("Failed to export outputs: %s", err)
		return 1
	}

	return 0
}
