package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dangvanduc1999/doffy-cdi/examples/numberguess"
	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/dangvanduc1999/doffy-cdi/libs/plugins/logger"
	"github.com/dangvanduc1999/doffy-cdi/libs/plugins/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON configuration file")
	maxNumber := flag.Int("max", numberguess.DefaultMaxNumber, "upper bound of the secret number")
	flag.Parse()

	cfg := core.DefaultConfig()
	if *configPath != "" {
		loaded, err := core.LoadConfig(*configPath)
		if err != nil {
			println("Failed to load configuration:", err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}

	plugins := []app.Plugin{logger.NewLoggerPlugin()}
	if cfg.Metrics.Enabled {
		plugins = append(plugins, metrics.NewMetricsPlugin(""))
	}

	doffApp, err := app.CreateDoffApp(&app.AppOptions{
		Name:    "Doffy numberguess",
		Config:  cfg,
		Modules: []*core.Module{numberguess.Module(*maxNumber)},
		Plugins: plugins,
	})
	if err != nil {
		println("Failed to create application:", err.Error())
		os.Exit(1)
	}
	numberguess.Routes(doffApp.GetRouter())

	// Start server in a goroutine
	go func() {
		if err := doffApp.Listen(); err != nil {
			println("Server stopped:", err.Error())
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	println("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := doffApp.Shutdown(ctx); err != nil {
		println("Server forced to shutdown:", err.Error())
	}

	println("Server exiting")
}
