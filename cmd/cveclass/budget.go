package main

import (
	"fmt"
	"os"
	"strings"

	"cveclass/internal/budget"
	"cveclass/internal/inference"

	"github.com/spf13/cobra"
)

// Defaults for the context-window probe. The generate endpoint is the
// native Ollama API, distinct from the chat-completions URL used by run.
const (
	defaultGenerateURL    = "http://localhost:11434/api/generate"
	defaultContextWindow  = 131072
	defaultReservedOutput = 1200
	defaultSafetyMargin   = 500
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Size worst-case prompts against the model's context window",
	Long: `Tokenizes the system prompt, the static prompt template, and the
largest complete .nvd/.mitre pair on disk via the model server's own
tokenizer, then reports how much of the context window the worst-case
classification request consumes.`,
	RunE: runBudget,
}

func init() {
	f := budgetCmd.Flags()
	f.String("json-dir", "", "directory containing input .nvd/.mitre files")
	f.String("url", defaultGenerateURL, "generate endpoint URL used for token counting")
	f.String("model", "", "model name")
	f.Int("context-window", defaultContextWindow, "model context window in tokens")
	f.Int("reserved-output", defaultReservedOutput, "tokens reserved for the model's answer")
	f.Int("safety-margin", defaultSafetyMargin, "safety margin in tokens")
	f.String("prompt-file", "", "prompt template file")
	f.String("role-file", "", "system role/persona file")
}

func runBudget(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	f := cmd.Flags()
	if f.Changed("json-dir") {
		cfg.JSONDir, _ = f.GetString("json-dir")
	}
	if f.Changed("model") {
		cfg.Model, _ = f.GetString("model")
	}
	if f.Changed("prompt-file") {
		cfg.PromptFile, _ = f.GetString("prompt-file")
	}
	if f.Changed("role-file") {
		cfg.RoleFile, _ = f.GetString("role-file")
	}
	generateURL, _ := f.GetString("url")
	contextWindow, _ := f.GetInt("context-window")
	reservedOutput, _ := f.GetInt("reserved-output")
	safetyMargin, _ := f.GetInt("safety-margin")

	var err error
	logger, err = newLogger(cfg.LogFile)
	if err != nil {
		return err
	}

	systemPrompt, err := os.ReadFile(cfg.RoleFile)
	if err != nil {
		return fmt.Errorf("failed to read role file %s: %w", cfg.RoleFile, err)
	}
	promptTemplate, err := os.ReadFile(cfg.PromptFile)
	if err != nil {
		return fmt.Errorf("failed to read prompt file %s: %w", cfg.PromptFile, err)
	}

	counter := inference.NewTokenCounter(generateURL, cfg.Model, cfg.GetTimeout())
	analyzer := budget.New(counter, budget.Options{
		ContextWindow:  contextWindow,
		ReservedOutput: reservedOutput,
		SafetyMargin:   safetyMargin,
	}, logger)

	analysis, err := analyzer.Analyze(cmd.Context(), cfg.JSONDir, string(systemPrompt), string(promptTemplate))
	if err != nil {
		return err
	}

	rule := styleMuted.Render(strings.Repeat("=", 28))
	fmt.Println(rule)
	fmt.Println(styleHeader.Render(" WORST-CASE TOKEN ANALYSIS"))
	fmt.Println(rule)
	fmt.Printf("Model: %s\n", cfg.Model)
	fmt.Printf("Context window: %d\n", contextWindow)
	fmt.Printf("Max usable input: %d\n", analysis.MaxInputTokens)
	fmt.Println()
	fmt.Printf("Complete pairs found: %d\n", analysis.PairCount)
	fmt.Printf("Largest pair: %s (%d bytes merged)\n", analysis.LargestID, analysis.LargestBytes)
	fmt.Println()
	fmt.Printf("System tokens: %d\n", analysis.SystemTokens)
	fmt.Printf("Static prompt tokens: %d\n", analysis.StaticTokens)
	fmt.Printf("Worst-case prompt tokens: %d\n", analysis.WorstTokens)
	if analysis.Headroom < 0 {
		fmt.Println(styleFailure.Render(fmt.Sprintf("Remaining headroom: %d (worst case does not fit)", analysis.Headroom)))
	} else {
		fmt.Printf("Remaining headroom: %d\n", analysis.Headroom)
	}
	fmt.Println()
	fmt.Printf("Max worst-case records per request: %d\n", analysis.MaxPerRequest)
	fmt.Println(rule)
	return nil
}
