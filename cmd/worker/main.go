package main

import (
	"github.com/basit-dev-64/notification-system-backend/internal/app"
	"go.uber.org/fx"
)

// main is the entry point for the background worker application.
func main() {
	fx.New(app.WorkerModule).Run()
}
