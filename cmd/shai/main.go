package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/agent/headless"
	"github.com/liveeadmin/shai/agent/terminal"
	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/hook"
	"github.com/liveeadmin/shai/llm"
	"github.com/liveeadmin/shai/serve"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

func main() {
	os.Exit(run())
}

func run() int {
	modeFlag := flag.String("m", "", "Execution mode: 'auto' or 'prompt'")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	verbosityFlag := flag.String("tool-verbosity", "none", "Tool verbosity level: 'none', 'info', or 'all'")
	pipeFlag := flag.Bool("p", false, "Pipe mode: read one turn from stdin, print the answer, exit")
	traceFlag := flag.Bool("trace", false, "In pipe mode, write the full conversation to stdout for chaining")
	serveFlag := flag.Bool("serve", false, "Run the HTTP server")
	hookCmdFlag := flag.String("hook", "", "Hook mode: the command line that just ran (output on stdin)")
	hookExitFlag := flag.Int("hook-exit", 0, "Hook mode: the command's exit code")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing LLM client: %+v\n", err)
		return 1
	}

	registry, err := tools.NewToolRegistry(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tools: %+v\n", err)
		return 1
	}
	defer registry.Close()

	ts, err := cfg.GetToolset(*toolsetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving toolset: %+v\n", err)
		return 1
	}
	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error activating tools: %+v\n", err)
		return 1
	}

	switch {
	case *serveFlag:
		return runServe(ctx, cfg, client, activeTools)
	case *hookCmdFlag != "":
		return runHook(ctx, cfg, client, activeTools, *hookCmdFlag, *hookExitFlag)
	case *pipeFlag:
		return runPipe(ctx, cfg, client, activeTools, *traceFlag)
	default:
		return runTerminal(ctx, cfg, client, activeTools, *modeFlag, *verbosityFlag)
	}
}

func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		SystemPrompt: cfg.SystemPrompt,
		TurnBudget:   cfg.TurnBudget,
		ToolTimeout:  cfg.ToolTimeout,
		Retry:        cfg.Retry,
	}
}

// runTerminal is the default interactive surface.
func runTerminal(ctx context.Context, cfg *config.Config, client llm.Client, activeTools []tools.Tool, modeName, verbosityName string) int {
	if modeName == "" {
		modeName = "prompt"
	}
	var mode agent.Mode
	var approver agent.Approver
	switch modeName {
	case "auto":
		mode = agent.ModeAuto
	case "prompt":
		mode = agent.ModePrompt
		approver = terminal.PromptApprover(os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'auto' or 'prompt'.\n", modeName)
		return 1
	}

	var verbosity terminal.Verbosity
	switch verbosityName {
	case "none", "":
		verbosity = terminal.VerbosityNone
	case "info":
		verbosity = terminal.VerbosityInfo
	case "all":
		verbosity = terminal.VerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", verbosityName)
		return 1
	}

	conv := session.NewConversation("term_" + uuid.NewString())
	a := agent.New(agentConfig(cfg), conv, events.NewBus(), client, activeTools, mode, approver)
	go func() {
		<-ctx.Done()
		a.Cancel("interrupted")
	}()

	fmt.Println("shai is ready. Type your prompt.")
	term := terminal.New(a, os.Stdin, os.Stdout, verbosity)
	if err := term.Run(ctx, strings.Join(flag.Args(), " ")); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		return 1
	}
	return 0
}

// runPipe reads one turn (or a prior trace) from stdin, streams progress to
// stderr, and prints the answer. With -trace the serialized conversation goes
// to stdout instead, for chaining into the next invocation.
func runPipe(ctx context.Context, cfg *config.Config, client llm.Client, activeTools []tools.Tool, emitTrace bool) int {
	conv := session.NewConversation("pipe_" + uuid.NewString())
	a := agent.New(agentConfig(cfg), conv, events.NewBus(), client, activeTools, agent.ModeAuto, nil)
	go func() {
		<-ctx.Done()
		a.Cancel("interrupted")
	}()

	err := headless.Run(ctx, a, headless.Options{
		Prompt:    strings.Join(flag.Args(), " "),
		EmitTrace: emitTrace,
		In:        os.Stdin,
		Out:       os.Stdout,
		ErrOut:    os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		return 1
	}
	return 0
}

// runHook handles one shell-hook trigger and prints the suggestion.
func runHook(ctx context.Context, cfg *config.Config, client llm.Client, activeTools []tools.Tool, command string, exitCode int) int {
	output, _ := io.ReadAll(os.Stdin)

	mgr := agent.NewManager(cfg, client, activeTools)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Shutdown(shutdownCtx)
	}()

	suggestion, err := hook.Suggest(ctx, mgr, hook.Trigger{
		Command:  command,
		ExitCode: exitCode,
		Output:   string(output),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		return 1
	}
	fmt.Println(suggestion)
	return 0
}

// runServe hosts the HTTP surface until interrupted.
func runServe(ctx context.Context, cfg *config.Config, client llm.Client, activeTools []tools.Tool) int {
	mgr := agent.NewManager(cfg, client, activeTools)
	srv := serve.NewServer(cfg, mgr, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %+v\n", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %+v\n", err)
			return 1
		}
		return 0
	}
}
