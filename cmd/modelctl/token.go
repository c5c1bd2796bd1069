// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/fusionserve/internal/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with the configured JWT secret",
		Example: `  JWT_SECRET=... modelctl token --subject ci --role trainer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sec := a.cfg.Security
			if sec.JWTSecret == "" {
				return errors.New("no JWT secret configured (set JWT_SECRET)")
			}
			tokens, err := auth.NewTokenManager(sec.JWTSecret, sec.JWTIssuer, sec.TokenTTL)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(subject, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "role: viewer, trainer or admin")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
