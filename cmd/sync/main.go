package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/config"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/infrastructure"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/reconcile"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/internal/roster"
)

func main() {
	_ = godotenv.Load()

	var (
		orgFlag       = flag.String("org", "", "Organization UUID (required)")
		platformsFlag = flag.String("platforms", "rootly", "Comma-separated source platforms, or 'all'")
		analysisRef   = flag.String("analysis-ref", "", "Analysis run reference tagged onto audit records")
	)
	flag.Parse()

	orgID, err := uuid.Parse(*orgFlag)
	if err != nil {
		log.Fatalf("invalid -org: %v", err)
	}

	platforms, err := parsePlatforms(*platformsFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed:", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		log.Fatal("infrastructure init failed:", err)
	}
	if err := infra.Start(); err != nil {
		log.Fatal("infrastructure start failed:", err)
	}
	infra.Lifecycle.WaitForStartup()

	infra.Logger.Info(
		"sync starting",
		"version", cfg.Version,
		"env", cfg.Env(),
		"org_id", orgID,
		"platforms", *platformsFlag,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := buildEngine(infra, cfg)

	var ref *string
	if *analysisRef != "" {
		ref = analysisRef
	}

	jobs := make([]reconcile.Job, 0, len(platforms))
	for _, p := range platforms {
		jobs = append(jobs, reconcile.Job{OrgID: orgID, Platform: p, AnalysisRef: ref})
	}

	summaries, err := engine.SyncAll(ctx, jobs)
	for _, s := range summaries {
		if s == nil {
			continue
		}
		out, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(out))
	}

	if shutdownErr := infra.Lifecycle.Shutdown(10 * time.Second); shutdownErr != nil {
		infra.Logger.Error("shutdown incomplete", "error", shutdownErr)
	}

	if err != nil {
		log.Fatal("sync failed:", err)
	}
}

func parsePlatforms(s string) ([]roster.Platform, error) {
	if s == "all" {
		return []roster.Platform{
			roster.PlatformRootly,
			roster.PlatformPagerDuty,
			roster.PlatformJira,
			roster.PlatformGitHub,
			roster.PlatformSlack,
		}, nil
	}

	var platforms []roster.Platform
	for _, part := range strings.Split(s, ",") {
		p := roster.Platform(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		if !p.Valid() {
			return nil, fmt.Errorf("unknown platform %q", p)
		}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no platforms given")
	}
	return platforms, nil
}
