// Command research runs one research loop against a question from the
// command line, printing the resulting answer and references as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepresearch/corerun"
	"github.com/deepresearch/corerun/corelog"
	"github.com/deepresearch/corerun/llm"
	"github.com/deepresearch/corerun/researchconfig"
	"github.com/deepresearch/corerun/search"
)

func main() {
	var (
		question   = flag.String("question", "", "research question (required)")
		maxSteps   = flag.Int("max-steps", 0, "override max steps (0 keeps the default)")
		tokenBudget = flag.Int("token-budget", 0, "override token budget (0 keeps the default)")
		allowCoding = flag.Bool("allow-coding", false, "enable the coding action")
	)
	flag.Parse()

	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: research -question \"...\"")
		os.Exit(2)
	}

	logger := corelog.NewSimpleLogger()

	opts := []researchconfig.Option{researchconfig.WithAllowCoding(*allowCoding), researchconfig.WithLogger(logger)}
	if *maxSteps > 0 {
		opts = append(opts, researchconfig.WithMaxSteps(*maxSteps))
	}
	if *tokenBudget > 0 {
		opts = append(opts, researchconfig.WithTokenBudget(*tokenBudget))
	}
	cfg, err := researchconfig.New(opts...)
	if err != nil {
		log.Fatalf("research: config: %v", err)
	}

	llmClient := llm.NewHTTPClient(os.Getenv("RESEARCH_LLM_API_KEY"), os.Getenv("RESEARCH_LLM_BASE_URL"), envOr("RESEARCH_LLM_MODEL", "gpt-4o-mini"), logger)
	searchProvider := search.NewHTTPProvider("serper", os.Getenv("RESEARCH_SEARCH_API_KEY"), envOr("RESEARCH_SEARCH_ENDPOINT", "https://google.serper.dev/search"), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := corerun.Run(ctx, *question, cfg, corerun.Capabilities{
		LLMClient:       llmClient,
		SearchProviders: []search.Provider{searchProvider},
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("research: run: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("research: encode result: %v", err)
	}
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
