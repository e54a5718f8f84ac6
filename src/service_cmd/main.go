package main

import (
	"github.com/joho/godotenv"

	"github.com/reqgate/reqgate/src/service_cmd/runner"
	"github.com/reqgate/reqgate/src/settings"
)

func main() {
	// A local .env file is optional; already-set environment variables win.
	_ = godotenv.Load()

	runner := runner.NewRunner(settings.NewSettings())
	runner.Run()
}
