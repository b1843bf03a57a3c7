package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goailoop/ailoop/config"
	"github.com/goailoop/ailoop/provider"
	"github.com/goailoop/ailoop/server"
	"github.com/goailoop/ailoop/workflow"
)

var version = "dev"

func main() {
	fmt.Printf("ailoop %s\n", version)

	cfg, err := config.Load(env("AILOOP_CONFIG", ""))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(cfg)

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}
	if orchestrator != nil {
		srv.AttachOrchestrator(orchestrator)
	}

	if err := wireTelegram(ctx, cfg, srv); err != nil {
		log.Printf("telegram: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("main: signal received, shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// buildOrchestrator wires the workflow persistence store, bash executor,
// approval manager, and registers every definition found under the
// configured definitions directory. A server with no definitions still
// gets a usable (empty) orchestrator so the workflow HTTP routes work.
func buildOrchestrator(cfg *config.Global) (*workflow.Orchestrator, error) {
	storePath, err := cfg.WorkflowStorePath()
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	persistence, err := workflow.NewPersistence(storePath)
	if err != nil {
		return nil, fmt.Errorf("open persistence at %s: %w", storePath, err)
	}

	output := workflow.NewOutputManager(persistence)
	executor := workflow.NewBashExecutor()
	executor.Sink = output

	approvals := workflow.NewApprovalManager(persistence)
	orchestrator := workflow.NewOrchestrator(persistence, executor, approvals)

	defsDir, err := cfg.WorkflowDefinitionsDir()
	if err != nil {
		return nil, fmt.Errorf("resolve definitions dir: %w", err)
	}
	defs, err := workflow.LoadDefinitionsDir(defsDir)
	if err != nil {
		return nil, fmt.Errorf("load definitions from %s: %w", defsDir, err)
	}
	for _, def := range defs {
		if err := orchestrator.RegisterWorkflow(def); err != nil {
			log.Printf("workflow: skipping %q: %v", def.Name, err)
			continue
		}
		log.Printf("workflow: registered %q from %s", def.Name, defsDir)
	}

	return orchestrator, nil
}

// wireTelegram registers a Telegram notification sink and, if a bot token is
// configured, spawns a goroutine polling for replies and resolving pending
// prompts. Telegram support is entirely optional: with no chat_id configured
// this is a silent no-op.
func wireTelegram(ctx context.Context, cfg *config.Global, srv *server.Server) error {
	chatID := cfg.Get().Telegram.ChatID
	if chatID == "" {
		return nil
	}
	token := config.ProviderToken()
	if token == "" {
		return fmt.Errorf("telegram chat_id is configured but %s is not set", config.ProviderTokenEnv)
	}

	sink, err := provider.NewTelegramSink(token, chatID)
	if err != nil {
		return err
	}
	srv.AddSink(sink)
	log.Printf("telegram: notification sink active for chat %s", chatID)

	replySource := provider.NewTelegramReplySource(token)
	go pollReplies(ctx, replySource, srv)
	return nil
}

func pollReplies(ctx context.Context, source provider.ReplySource, srv *server.Server) {
	registry := srv.Prompts()
	for {
		reply, err := source.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("telegram: poll error: %v", err)
			continue
		}
		if reply == nil {
			continue
		}
		registry.SubmitReply(&reply.ReplyToMessageID, reply.Answer, reply.ResponseType)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
