package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/fieldmemo/internal/auth"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
	"github.com/dharsanguruparan/fieldmemo/internal/pipeline"
	"github.com/dharsanguruparan/fieldmemo/internal/repository"
)

var errRedisRequired = errors.New("the worker needs a Redis queue; set FIELDMEMO_REDIS_ADDR")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newProcessCmd() *cobra.Command {
	var owner, date, category string
	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Run one audio file through transcription and task extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			a, err := newApp(ctx, "fieldmemo-cli")
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" {
				date = time.Now().Format(model.DateLayout)
			}
			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			if contentType == "" {
				contentType = "audio/webm"
			}
			memo, runErr := a.pipeline.ProcessMemo(ctx, pipeline.MemoInput{
				OwnerID: owner,
				Capture: model.Capture{
					Kind:        model.KindAudio,
					Data:        data,
					FileName:    filepath.Base(args[0]),
					ContentType: contentType,
				},
				ContextDate: date,
				Category:    model.TaskCategory(category),
			})
			if memo != nil {
				tasks, err := a.store.ListTasks(ctx, owner, repository.TaskFilter{VoiceMemoID: memo.ID})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]interface{}{"memo": memo, "tasks": tasks}); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner id the memo is stored under")
	cmd.Flags().StringVar(&date, "date", "", "Context date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&category, "category", string(model.CategoryPersonal), "Task category: personal or work")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var owner string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			authn, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := authn.Issue(owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
