// Package main is the entry point for the runbox execution dispatcher.
//
// Runbox accepts arbitrary untrusted source code, runs it inside an
// isolated, resource-constrained container, and returns captured output
// with a well-defined failure taxonomy. The server supports stdio and
// HTTP transports and enforces network isolation, a hard memory cap, a
// read-only filesystem, and a wall-clock timeout on every execution.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/nkoval/runbox/config"
	"github.com/nkoval/runbox/dispatcher"
	"github.com/nkoval/runbox/journal"
	"github.com/nkoval/runbox/logger"
	"github.com/nkoval/runbox/mcpserver"
	"github.com/nkoval/runbox/sandbox"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			sandbox.NewRunner,
			sandbox.NewProvisionerFromConfig,
			journal.NewFromConfig,
			dispatcher.New,
			func(d *dispatcher.Dispatcher) mcpserver.Executor { return d },
			mcpserver.New,
		),

		fx.Invoke(
			func(lc fx.Lifecycle, d *dispatcher.Dispatcher, store journal.Store) {
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						// In-flight sandboxes finish and are torn down
						// before the journal closes underneath them.
						if err := d.Close(); err != nil {
							return err
						}
						return store.Close()
					},
				})
			},

			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}
