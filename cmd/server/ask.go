package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func askCMD(cfgPath *string) *cobra.Command {
	var (
		sessionID string
		userID    string
		imagePath string
	)
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the answer to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			req := service.ChatRequest{SessionID: sessionID, UserID: userID, Prompt: strings.Join(args, " ")}
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("读取图片失败: %w", err)
				}
				req.Image = &service.ImageInput{Filename: filepath.Base(imagePath), Data: data}
			}
			if req.SessionID == "" {
				req.SessionID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			res, err := a.chat.Answer(ctx, req, service.ChunkWriterFunc(func(text string) error {
				_, werr := fmt.Fprint(out, text)
				return werr
			}))
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\nstandalone question: %s\npersisted: %t\n",
				res.SessionID, res.Standalone, res.Persisted)
			if res.PersistErr != nil {
				return errors.Join(errors.New("answer was not saved"), res.PersistErr)
			}
			return nil
		},
	}
	ask.Flags().StringVar(&sessionID, "session", "", "session id (continues an existing conversation)")
	ask.Flags().StringVar(&userID, "user", "cli", "user id")
	ask.Flags().StringVar(&imagePath, "image", "", "ask with an image instead of a question")
	return ask
}
