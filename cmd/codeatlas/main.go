// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command codeatlas analyzes a source tree and emits the structural
// analysis report as JSON.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeAtlas/pkg/logging"
	"github.com/AleutianAI/CodeAtlas/services/intel"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type analyzeFlags struct {
	include     []string
	exclude     []string
	languages   []string
	depth       string
	configPath  string
	output      string
	workers     int
	fileTimeout time.Duration
	logLevel    string
	quiet       bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codeatlas",
		Short:         "Structural analysis for multi-language codebases",
		Long:          "codeatlas parses source trees across languages and reports symbols,\ndependency graphs, design patterns, architectural styles, and signal flows.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	flags := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <root>",
		Short: "Analyze a source tree and emit the JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.include, "include", nil, "glob patterns to include (repeatable)")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "glob patterns to exclude (repeatable)")
	cmd.Flags().StringSliceVar(&flags.languages, "lang", nil, "restrict analysis to these languages")
	cmd.Flags().StringVar(&flags.depth, "depth", "deep", "analysis depth: surface, deep, or full")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to an analyzer config file (YAML)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "parse worker count (default: CPU count)")
	cmd.Flags().DurationVar(&flags.fileTimeout, "file-timeout", 0, "per-file parse budget (default 10s)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress progress logging")

	return cmd
}

func runAnalyze(cmd *cobra.Command, root string, flags *analyzeFlags) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(flags.logLevel),
		Service: "codeatlas",
		Quiet:   flags.quiet,
	})
	defer logger.Close()

	depth, err := intel.ParseDepth(flags.depth)
	if err != nil {
		return err
	}

	cfg := intel.DefaultConfig()
	if flags.configPath != "" {
		cfg, err = intel.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
	}

	eng, err := intel.New(intel.Options{
		Root:        root,
		Include:     flags.include,
		Exclude:     flags.exclude,
		Languages:   flags.languages,
		Depth:       depth,
		Workers:     flags.workers,
		FileTimeout: flags.fileTimeout,
		Config:      cfg,
	}, logger)
	if err != nil {
		return err
	}

	rep, err := eng.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, createErr := os.Create(flags.output)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer f.Close()
		out = f
	}
	return rep.Encode(out)
}
