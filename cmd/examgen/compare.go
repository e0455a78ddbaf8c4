package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"examgen"
	"examgen/app"

	"github.com/spf13/cobra"
)

func newCompareCmd() *cobra.Command {
	var (
		params     examgen.GenerationParams
		qtype      string
		difficulty string
		bloom      string
		collection string
		topK       int
		promptPath string
		judgePath  string
		out        string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Judge retrieval-augmented against plain generation for one topic",
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

			genTpl, err := examgen.LoadPromptTemplate(promptPath)
			if err != nil {
				return err
			}
			judgeTpl, err := examgen.LoadJudgeTemplate(judgePath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Open(ctx, cfg, app.Needs{Completion: true, Index: true})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close(context.Background())) }()

			cmp, err := a.Comparer(genTpl, judgeTpl, topK).Compare(ctx, params)
			if err != nil {
				return fmt.Errorf("comparison failed: %w", err)
			}

			if out == "" {
				out = examgen.CompareOutputPath(cfg.Paths.OutputDir, params)
			}
			if err := examgen.WriteJSONL(out, []*examgen.Comparison{cmp}); err != nil {
				return err
			}

			verdict, err := json.MarshalIndent(cmp.Judge, "", "  ")
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Saved comparison to %s\n", out)
			fmt.Fprintln(w, string(verdict))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&params.Subject, "subject", "", "Subject tag used in ingestion")
	f.StringVar(&params.Topic, "topic", "", "Topic to generate questions about")
	f.StringVar(&qtype, "qtype", string(examgen.QTypeMCQ), "Question type (mcq, tf)")
	f.StringVar(&difficulty, "difficulty", string(examgen.DifficultyMedium), "Difficulty level (easy, medium, hard)")
	f.StringVar(&bloom, "bloom_level", string(examgen.BloomUnderstand), "Bloom level used in the generation prompt")
	f.IntVar(&params.N, "n", 5, "Number of questions per set")
	f.StringVar(&collection, "collection", "", "Index collection name (default from config)")
	f.IntVar(&topK, "top_k", 6, "Number of retrieved examples shown to the augmented set and the judge")
	f.StringVar(&promptPath, "prompt_path", "", "Generation prompt template (default: built-in)")
	f.StringVar(&judgePath, "judge_path", "", "Judge rubric template (default: built-in)")
	f.StringVar(&out, "out", "", "Output JSONL path")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "Deadline for the whole comparison")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}
