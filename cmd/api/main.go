package main

import (
	"github.com/basit-dev-64/notification-system-backend/internal/app"
	"go.uber.org/fx"
)

// main is the entry point for the API server application.
func main() {
	fx.New(app.APIModule).Run()
}
