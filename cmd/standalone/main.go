package main

import (
	"github.com/basit-dev-64/notification-system-backend/internal/app"
	"go.uber.org/fx"
)

// main runs the API and the worker pool in a single process.
func main() {
	fx.New(app.StandaloneModule).Run()
}
