package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"examgen"
	"examgen/app"

	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		params     examgen.GenerationParams
		qtype      string
		difficulty string
		bloom      string
		collection string
		maxK       int
		promptPath string
		out        string
		useCache   bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of questions for a subject and topic",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			params.QType = examgen.QType(qtype)
			params.Difficulty = examgen.Difficulty(difficulty)
			params.BloomLevel = examgen.BloomLevel(bloom)
			if err := params.Validate(); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if collection != "" {
				cfg.Index.Collection = collection
			}

			tpl, err := examgen.LoadPromptTemplate(promptPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Open(ctx, cfg, app.Needs{Completion: true, Index: true, Store: true})
			if err != nil {
				return err
			}
			// close with a fresh context so a timed-out generation still saves the cache
			defer func() { err = errors.Join(err, a.Close(context.Background())) }()

			examgen.VerboseLog("Starting generation for %s/%s: %d %s questions (%s, %s)",
				params.Subject, params.Topic, params.N, params.QType, params.Difficulty, params.BloomLevel)

			gen := a.Generator(tpl)
			res, err := gen.Generate(ctx, examgen.GenerateRequest{
				Params:   params,
				UseCache: useCache,
				OutPath:  out,
				MaxK:     maxK,
			})
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}
			if err := gen.Flush(context.Background()); err != nil {
				return err
			}

			printResult(cmd, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&params.Subject, "subject", "", "Subject tag used in ingestion (e.g., science)")
	f.StringVar(&params.Topic, "topic", "", "Topic to generate questions about")
	f.StringVar(&qtype, "qtype", string(examgen.QTypeMCQ), "Question type (mcq, tf)")
	f.StringVar(&difficulty, "difficulty", string(examgen.DifficultyMedium), "Difficulty level (easy, medium, hard)")
	f.StringVar(&bloom, "bloom_level", string(examgen.BloomUnderstand), "Bloom level (remember, understand, apply, analyze, evaluate, create)")
	f.IntVar(&params.N, "n", 5, "Number of questions to generate")
	f.StringVar(&collection, "collection", "", "Index collection name (default from config)")
	f.IntVar(&maxK, "max_k", 0, "Max retrieved examples for style guidance (default from config)")
	f.StringVar(&promptPath, "prompt_path", "", "Prompt template file (default: built-in)")
	f.StringVar(&out, "out", "", "Output JSONL path; a CSV with the same stem is written next to it")
	f.BoolVar(&useCache, "use_cache", false, "Reuse a prior generation with the same parameters")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "Deadline for the whole generation")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func printResult(cmd *cobra.Command, res *examgen.Result) {
	w := cmd.OutOrStdout()
	if res.FromCache {
		fmt.Fprintln(w, "Loaded from cache.")
	}
	if res.Degraded {
		fmt.Fprintln(w, "Warning: the model response could not be parsed; saved the raw text as a single record for manual review.")
	}
	fmt.Fprintf(w, "Saved %d questions to: %s\n", len(res.Records), res.Outputs.JSONL)
	fmt.Fprintf(w, "CSV also saved to: %s\n", res.Outputs.CSV)
}
