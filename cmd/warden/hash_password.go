// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Hash a password with the configured hasher",
		Long: `Print the encoded hash of PASSWORD, or of the first line of stdin when
no argument is given, using the configured algorithm and cost. Useful for
seeding users or checking hasher settings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHashPassword,
	}
	cmd.Flags().String("hasher-algorithm", "", "password hasher: argon2id or bcrypt (default from config)")
	return cmd
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if scanner.Scan() {
			password = strings.TrimRight(scanner.Text(), "\r")
		}
		if err := scanner.Err(); err != nil {
			return oops.Code("HASH_INPUT_FAILED").Wrap(err)
		}
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	hasher, err := newHasher(cfg.Hasher)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return oops.Code("HASH_FAILED").Wrap(err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), hash); err != nil {
		return oops.Code("HASH_OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
