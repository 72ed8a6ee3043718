package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zeack/exchange-rate/internal/auth"
	"github.com/zeack/exchange-rate/internal/config"
	"github.com/zeack/exchange-rate/internal/db"
	"github.com/zeack/exchange-rate/internal/logger"
	"github.com/zeack/exchange-rate/internal/model"
	"github.com/zeack/exchange-rate/internal/repository"
)

var (
	seedUsername string
	seedPassword string
	seedEmail    string
	seedSuper    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo user with one API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Encoding)

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		outbox := repository.NewOutboxRepository(sqlDB)
		users := repository.NewUsersRepository(sqlDB, outbox)
		keys := repository.NewAPIKeysRepository(sqlDB)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		u, err := seedUser(ctx, users, cfg.Usage.WindowDays)
		if err != nil {
			return err
		}

		k := model.APIKey{UserID: u.ID, Key: auth.NewCredential(), Name: "seed"}
		if err := keys.Create(ctx, &k); err != nil {
			return fmt.Errorf("create key: %w", err)
		}

		logger.Log.Info("seed completed", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
		cmd.Printf(">> user=%s api_key=%s\n", u.Username, k.Key)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedUsername, "username", "demo", "demo username")
	seedCmd.Flags().StringVar(&seedPassword, "password", "demo-password", "demo password")
	seedCmd.Flags().StringVar(&seedEmail, "email", "demo@example.com", "demo email")
	seedCmd.Flags().BoolVar(&seedSuper, "superuser", false, "grant superuser")
}

// seedUser returns the existing user or creates it with a fresh window.
func seedUser(ctx context.Context, users repository.UsersRepository, windowDays int) (*model.User, error) {
	existing, err := users.GetByUsername(ctx, seedUsername)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		Email:        seedEmail,
		Username:     seedUsername,
		PasswordHash: hash,
		IsSuperuser:  seedSuper,
	}
	u.SetWindow(model.FreshWindow(time.Now().UTC(), windowDays))

	if err := users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("email %q already belongs to another user", seedEmail)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}
