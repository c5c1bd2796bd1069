// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/ml"
	"github.com/tomtom215/fusionserve/internal/ml/pipeline"
)

// dataset is a labelled training or test file. Rows come either as numeric
// features or as contents run through the extractor.
type dataset struct {
	Features [][]float64        `json:"features" yaml:"features"`
	Contents []features.Content `json:"contents" yaml:"contents"`
	Labels   []int              `json:"labels" yaml:"labels"`
}

// trainReport is printed by the train command.
type trainReport struct {
	Model      string                `json:"model"`
	Metadata   ml.Metadata           `json:"metadata"`
	Validation *ml.ValidationMetrics `json:"validation,omitempty"`
}

func (a *app) trainCmd() *cobra.Command {
	var (
		dataPath   string
		testPath   string
		name       string
		minSamples int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a fusion pipeline on a dataset file and report its metadata",
		Long: `train fits the configured fusion pipeline on a dataset and prints the
resulting metadata. With --test the fitted model is also validated on a held
out dataset. Datasets are JSON, or YAML when the file ends in .yaml or .yml:

  {"features": [[0.1, 2.0], ...], "labels": [0, ...]}
  {"contents": [{"text": "..."}, ...], "labels": [1, ...]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mc, err := a.cfg.ModelConfig()
			if err != nil {
				return err
			}
			if minSamples > 0 {
				mc.MinSamples = minSamples
			}
			opts, err := extractorOptions(a.cfg)
			if err != nil {
				return err
			}
			model, err := pipeline.New(name, mc,
				pipeline.WithForestConfig(a.cfg.ForestConfig()),
				pipeline.WithIsolationConfig(a.cfg.IsolationConfig()),
				pipeline.WithExtractorOptions(opts...),
				pipeline.WithLogger(logging.WithComponent("pipeline")),
			)
			if err != nil {
				return err
			}

			train, err := readDataset(dataPath)
			if err != nil {
				return err
			}
			rows, err := datasetRows(ctx, model, train)
			if err != nil {
				return fmt.Errorf("%s: %w", dataPath, err)
			}
			if err := model.Train(ctx, rows, train.Labels); err != nil {
				return err
			}

			report := trainReport{Model: name, Metadata: model.Metadata()}
			if testPath != "" {
				test, err := readDataset(testPath)
				if err != nil {
					return err
				}
				testRows, err := datasetRows(ctx, model, test)
				if err != nil {
					return fmt.Errorf("%s: %w", testPath, err)
				}
				if report.Validation, err = model.Validate(ctx, testRows, test.Labels); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "training dataset file (required)")
	cmd.Flags().StringVar(&testPath, "test", "", "held out dataset to validate on")
	cmd.Flags().StringVar(&name, "model", ml.DefaultModelName, "model name")
	cmd.Flags().IntVar(&minSamples, "min-samples", 0, "override the minimum training rows")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func readDataset(path string) (*dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		err = json.Unmarshal(data, &ds)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &ds, nil
}

// datasetRows returns the feature rows of ds, extracting contents with the
// model's own extractor so the layout matches.
func datasetRows(ctx context.Context, model ml.ContentModel, ds *dataset) ([][]float64, error) {
	switch {
	case ds.Features != nil && ds.Contents != nil:
		return nil, errors.New("dataset has both features and contents")
	case ds.Features != nil:
		return ds.Features, nil
	case ds.Contents == nil:
		return nil, errors.New("dataset has neither features nor contents")
	}
	rows := make([][]float64, len(ds.Contents))
	for i, c := range ds.Contents {
		b, err := model.Extract(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("content %d: %w", i, err)
		}
		if rows[i], err = model.Row(b); err != nil {
			return nil, fmt.Errorf("content %d: %w", i, err)
		}
	}
	return rows, nil
}
