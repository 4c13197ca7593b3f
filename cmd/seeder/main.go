// Command seeder creates a sample campaign (and optionally a sender account)
// in the local store and submits a run job, for exercising the worker without
// the production front-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"adcast/internal/campaign"
	"adcast/internal/config"
	"adcast/internal/jobs"
	"adcast/internal/storage"
	"adcast/pkg/logx"
)

func main() {
	var (
		cfgPath string
		owner   int64
		text    string
		include string
		rate    int
		token   string
		submit  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Int64Var(&owner, "owner", 1, "owner user id")
	flag.StringVar(&text, "text", "hello from adcast", "message text")
	flag.StringVar(&include, "include", "", "comma-separated target chat ids")
	flag.IntVar(&rate, "rate", 10, "sends per minute per account")
	flag.StringVar(&token, "token", "", "bot token to register as a sender account")
	flag.BoolVar(&submit, "submit", false, "publish a run job for the new campaign")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(cfgPath, owner, text, include, rate, token, submit); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string, owner int64, text, include string, rate int, token string, submit bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := logx.NewConsole(cfg.Logging.Level)

	store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, log)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("seeder requires storage")
	}
	defer store.Close()

	ctx := context.Background()

	if token != "" {
		acc := campaign.Account{
			ID:         uuid.NewString(),
			Owner:      owner,
			Label:      "seeded",
			Credential: token,
			Active:     true,
			CreatedAt:  time.Now(),
		}
		if err := store.CreateAccount(ctx, acc); err != nil {
			return err
		}
		log.Info("account created", logx.String("id", acc.ID))
	}

	spec := &campaign.Spec{
		ID:         uuid.NewString(),
		Owner:      owner,
		Message:    campaign.Message{Text: text},
		Mode:       campaign.ModeInclude,
		Include:    parseIDs(include),
		RatePerMin: rate,
		Status:     campaign.StatusRunning,
		CreatedAt:  time.Now(),
	}
	spec.Normalize(cfg.Dispatch.DefaultRatePerMin)
	if err := store.CreateCampaign(ctx, spec); err != nil {
		return err
	}
	log.Info("campaign created", logx.String("id", spec.ID), logx.Int("targets", len(spec.Include)))

	if submit {
		queue, err := jobs.Dial(cfg.Queue.URL, cfg.Queue.Name, log)
		if err != nil {
			return err
		}
		defer queue.Close()
		if err := queue.Publish(spec.ID); err != nil {
			return err
		}
		log.Info("run job published", logx.String("campaign", spec.ID))
	}
	return nil
}

func parseIDs(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
