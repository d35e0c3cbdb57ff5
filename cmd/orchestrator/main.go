// Command orchestrator is a thin, flag-driven CLI wrapper around the
// orchestration core: parse flags, set up a Clue logger, wire the service,
// run until signaled.
// It loads the model-candidate and prompt-template config files, wires the
// Gateway/Registry/Planner/Executor/Runner, and drives submitRequest
// against stdin (one line, one request), printing the event stream to
// stdout as each notification arrives.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"goa.design/clue/log"

	agentconfig "github.com/devassist/agentcore/pkg/config"
	"github.com/devassist/agentcore/pkg/executor"
	"github.com/devassist/agentcore/pkg/hooks"
	"github.com/devassist/agentcore/pkg/knowledge"
	"github.com/devassist/agentcore/pkg/knowledge/store/inmem"
	"github.com/devassist/agentcore/pkg/model"
	"github.com/devassist/agentcore/pkg/model/providers/anthropic"
	"github.com/devassist/agentcore/pkg/model/providers/bedrock"
	"github.com/devassist/agentcore/pkg/model/providers/openai"
	"github.com/devassist/agentcore/pkg/orcherr"
	"github.com/devassist/agentcore/pkg/planner"
	"github.com/devassist/agentcore/pkg/retrieval"
	"github.com/devassist/agentcore/pkg/runner"
	"github.com/devassist/agentcore/pkg/task"
	"github.com/devassist/agentcore/pkg/telemetry"
	"github.com/devassist/agentcore/pkg/tools"
)

func main() {
	var (
		candidatesF = flag.String("candidates", "", "path to the model-candidate YAML file")
		promptsF    = flag.String("prompts", "", "path to the prompt-template YAML file")
		workspaceF  = flag.String("workspace", ".", "workspace root the built-in LIST_FILES/READ_FILE tools read from")
		scoreF      = flag.Float64("score-threshold", 0.0, "minimum retrieval score passed to each vector collection's Search")
		quickF      = flag.Bool("quick", false, "prefer low-latency model candidates for every request read from stdin")
		clientIDF   = flag.String("client-id", "cli", "client id attached to each TaskContext")
		clientDescF = flag.String("client-description", "", "prose description of the client, interpolated into planning prompts")
		projectIDF  = flag.String("project-id", "", "optional project id attached to each TaskContext")
		projectDescF = flag.String("project-description", "", "prose description of the project, interpolated into planning prompts")
		checklistF  = flag.String("checklist", "", "comma-separated question checklist; defaults to the request text itself")
		debugF      = flag.Bool("debug", false, "log request/response bodies and candidate selection at debug level")
	)
	flag.Parse()

	if *candidatesF == "" || *promptsF == "" {
		fmt.Fprintln(os.Stderr, "usage: orchestrator -candidates FILE -prompts FILE [flags] < requests.txt")
		os.Exit(2)
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debugF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	gateway, candidates, err := buildGateway(ctx, *candidatesF, *promptsF, logger, metrics, tracer)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build model gateway")
	}

	preloader := model.NewPreloader(candidates, logger)
	preloader.PreloadAll(ctx)
	warmer := model.NewWarmer(candidates, 0.8, 30*time.Second, logger)
	go warmer.Run(ctx)

	registry, err := tools.NewRegistry([]tools.Tool{
		tools.ListFilesTool{Root: *workspaceF},
		tools.ReadFileTool{Root: *workspaceF},
	})
	if err != nil {
		log.Fatalf(ctx, err, "failed to build tool registry")
	}

	collections := knowledge.Collections{Text: inmem.NewVectorStore(), Code: inmem.NewVectorStore()}
	retr := retrieval.New(gateway, collections, float32(*scoreF), logger, tracer)
	plnr := planner.New(gateway, registry, logger, tracer, 0)
	plnr.ClientDescription = *clientDescF
	plnr.ProjectDescription = *projectDescF

	bus := hooks.NewBus()
	bus.Subscribe(hooks.SubscriberFunc(printEvent))

	exec := executor.New(registry, bus, nil, logger, tracer)
	run := runner.New(gateway, retr, plnr, exec, bus, logger, tracer)

	if err := driveStdin(ctx, run, *clientIDF, *projectIDF, *quickF, checklist(*checklistF)); err != nil {
		log.Fatalf(ctx, err, "request loop exited with error")
	}
}

// checklist splits a comma-separated flag value; an empty value yields a
// nil checklist, which driveStdin fills in per-request from the request
// text itself.
func checklist(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// driveStdin reads one request per line from stdin and drives each to
// resolution via Runner.Submit, stopping on EOF or context cancellation.
func driveStdin(ctx context.Context, run *runner.Runner, clientID, projectID string, quick bool, fixedChecklist []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return orcherr.Cancellation(err)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tc := &task.TaskContext{
			ID:           uuid.NewString(),
			ClientID:     clientID,
			ProjectID:    projectID,
			OriginalText: line,
			Language:     "en",
			EnglishText:  line,
			Quick:        quick,
		}

		checklist := fixedChecklist
		if len(checklist) == 0 {
			checklist = []string{line}
		}

		resolved, err := run.Submit(ctx, tc, line, checklist)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "contextId", V: tc.ID})
			continue
		}
		log.Info(ctx, log.KV{K: "contextId", V: tc.ID}, log.KV{K: "resolved", V: resolved})
	}
	return scanner.Err()
}

// printEvent renders a hooks.Event as a single JSON line on stdout.
func printEvent(_ context.Context, e hooks.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintln(os.Stderr, "event marshal error:", err)
		return
	}
	fmt.Println(string(data))
}

// buildGateway loads the candidate/prompt config files, resolves every
// candidate to a live provider client via clientFactory, patches in an
// embedding client for the "embedding" usage tag, and constructs the
// Gateway. It returns the resolved candidates alongside the Gateway so
// main can hand them to the Warmer/Preloader, which need the raw slice
// Gateway does not expose.
func buildGateway(ctx context.Context, candidatesPath, promptsPath string, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) (*model.Gateway, []model.Candidate, error) {
	candidateFile, err := agentconfig.LoadCandidateFile(candidatesPath)
	if err != nil {
		return nil, nil, err
	}
	prompts, err := agentconfig.LoadPromptStore(promptsPath)
	if err != nil {
		return nil, nil, err
	}

	factory := newClientFactory(ctx)
	candidates, err := agentconfig.ResolveCandidates(candidateFile, factory)
	if err != nil {
		return nil, nil, err
	}

	var embedClient model.Embedder
	for i := range candidates {
		if candidates[i].Usage != "embedding" {
			continue
		}
		if embedClient == nil {
			embedClient, err = newEmbedClient()
			if err != nil {
				return nil, nil, err
			}
		}
		candidates[i].EmbedClient = embedClient
	}

	gateway, err := model.NewGateway(candidates, prompts, logger, metrics, tracer)
	if err != nil {
		return nil, nil, err
	}
	return gateway, candidates, nil
}

// newClientFactory dispatches on the candidate's provider tag to the
// matching provider adapter, reading credentials from the environment
// (ANTHROPIC_API_KEY, OPENAI_API_KEY) or the default AWS credential chain
// for bedrock.
func newClientFactory(ctx context.Context) agentconfig.ClientFactory {
	return func(provider string) (model.Client, error) {
		switch provider {
		case "anthropic":
			apiKey := os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return nil, orcherr.Configuration("ANTHROPIC_API_KEY is required for provider \"anthropic\"")
			}
			return anthropic.NewFromAPIKey(apiKey, 0)
		case "openai":
			apiKey := os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				return nil, orcherr.Configuration("OPENAI_API_KEY is required for provider \"openai\"")
			}
			return openai.NewFromAPIKey(apiKey)
		case "bedrock":
			cfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, orcherr.Wrap(orcherr.KindConfiguration, "loading default AWS config for provider \"bedrock\"", err)
			}
			return bedrock.New(bedrockruntime.NewFromConfig(cfg))
		default:
			return nil, orcherr.Newf(orcherr.KindConfiguration, "unrecognized provider %q", provider)
		}
	}
}

// newEmbedClient builds the embedding-usage client. Only OpenAI's
// embeddings endpoint is wired: embedding is a single usage tag with its
// own fallback chain, and this CLI only needs one concrete embedder to
// exercise that chain end to end.
func newEmbedClient() (model.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, orcherr.Configuration("OPENAI_API_KEY is required to serve the \"embedding\" usage tag")
	}
	return openai.NewEmbedClientFromAPIKey(apiKey)
}
