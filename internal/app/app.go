// Package app wires the application together: configuration, tracing,
// PostgreSQL, Genkit, the classifier, the handoff queue, the agent, and the
// HTTP API server.
//
// Setup builds everything in dependency order with explicit providers; Close
// tears it down in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caspar0/caspar/internal/agent"
	"github.com/caspar0/caspar/internal/api"
	"github.com/caspar0/caspar/internal/config"
	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/handoff"
	"github.com/caspar0/caspar/internal/knowledge"
	"github.com/caspar0/caspar/internal/log"
	"github.com/caspar0/caspar/internal/tools"
)

// Options select the application wiring mode.
type Options struct {
	// Memory runs without PostgreSQL: in-memory conversation store, no case
	// journal, and the static knowledge corpus. Intended for development.
	Memory bool
}

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool // nil in memory mode

	Store     conversation.Store
	Queue     *handoff.Queue
	Registry  *tools.Registry
	Retriever knowledge.Retriever
	Agent     *agent.Agent
	Server    *api.Server

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
