// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/fusionserve/internal/config"
	"github.com/tomtom215/fusionserve/internal/features"
	"github.com/tomtom215/fusionserve/internal/logging"
	"github.com/tomtom215/fusionserve/internal/models"
)

func (a *app) extractCmd() *cobra.Command {
	var (
		text         string
		images       []string
		noNLP        bool
		noVision     bool
		embeddingDim int
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the feature bundle and layout for a piece of content",
		Example: `  modelctl extract --text "Alice flew to Paris on Monday."
  modelctl extract --image ./photo.png --no-nlp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := a.cfg.FeatureConfig()
			if err != nil {
				return err
			}
			fc.UseNLP = fc.UseNLP && !noNLP
			fc.UseVision = fc.UseVision && !noVision
			if cmd.Flags().Changed("embedding-dim") {
				fc.EmbeddingDim = embeddingDim
			}

			opts, err := extractorOptions(a.cfg)
			if err != nil {
				return err
			}
			ext, err := features.NewExtractor(fc, opts...)
			if err != nil {
				return err
			}

			content := features.Content{Images: images}
			if cmd.Flags().Changed("text") {
				content.Text = &text
			}
			bundle, err := ext.Extract(cmd.Context(), content)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), models.ExtractResponse{Features: bundle, Layout: ext.Layout()})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "text to analyze")
	cmd.Flags().StringSliceVar(&images, "image", nil, "image reference: URL, data URI, base64 or file path (repeatable)")
	cmd.Flags().BoolVar(&noNLP, "no-nlp", false, "disable the text modality")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "disable the vision modality")
	cmd.Flags().IntVar(&embeddingDim, "embedding-dim", features.DefaultEmbeddingDim, "text embedding dimensions")
	return cmd
}

// extractorOptions mirrors the server's extractor wiring. The operator
// supplies the references, so local files and remote URLs are always
// allowed; the address guard still follows fetch_allow_private.
func extractorOptions(cfg *config.Config) ([]features.Option, error) {
	lexicon := features.DefaultLexicon()
	if cfg.Features.LexiconPath != "" {
		lex, err := features.LoadLexicon(cfg.Features.LexiconPath)
		if err != nil {
			return nil, err
		}
		lexicon = lex
	}
	loaderCfg := cfg.LoaderConfig()
	loaderCfg.AllowFiles = true
	loaderCfg.AllowRemote = true
	loaderCfg.Fetcher = features.NewHTTPFetcher(cfg.FetcherConfig(), nil)

	return []features.Option{
		features.WithLexicon(lexicon),
		features.WithImageLoader(features.NewSourceLoader(loaderCfg)),
		features.WithLogger(logging.WithComponent("features")),
	}, nil
}
