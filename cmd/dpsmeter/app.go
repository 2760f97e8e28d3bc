package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ZehenForever/dpsmeter/internal/catalog"
	"github.com/ZehenForever/dpsmeter/internal/config"
	"github.com/ZehenForever/dpsmeter/internal/engine"
	"github.com/ZehenForever/dpsmeter/internal/flow"
	"github.com/ZehenForever/dpsmeter/internal/logging"
	"github.com/ZehenForever/dpsmeter/internal/store"
	"github.com/rs/zerolog"
)

// app is the wired meter: catalogue, store, identity, aggregator and the flow
// dispatcher feeding them.
type app struct {
	// mu guards cfg and cfgPath; settings are saved from HTTP handlers.
	mu      sync.Mutex
	cfg     config.Config
	cfgPath string
	log     zerolog.Logger

	cat      *catalog.Catalog
	store    *store.Store
	identity *engine.LocalIdentity
	clock    *engine.ReplayClock
	agg      *engine.Aggregator
	flows    *flow.Dispatcher
}

func newApp(flags *rootFlags) (*app, error) {
	if flags.configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, flags.configPath); err != nil {
			return nil, err
		}
	}
	cfg, path, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.debug {
		cfg.Debug = true
	}
	if flags.character != "" {
		cfg.CharacterName = flags.character
	}
	if flags.mode != "" {
		cfg.SelectionMode = flags.mode
	}

	log := logging.Init(logging.Options{App: "dpsmeter", Level: cfg.LogLevel, Debug: cfg.Debug, JSON: flags.jsonLogs})
	if path != "" {
		log.Info().Str("path", path).Msg("loaded config")
	}

	mode, err := engine.ParseMode(cfg.SelectionMode)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cfgPath: path, log: log, cat: cat}
	a.store = store.New(log)
	for code, name := range cat.Mobs() {
		a.store.AppendMobCode(code, name)
	}

	a.identity = engine.NewLocalIdentity(cfg.CharacterName, cfg.KnownActorID)
	a.store.SetObserver(a.identity)

	a.clock = &engine.ReplayClock{}
	a.agg = engine.New(a.store, a.identity, catalog.NewResolver(cat, log), engine.Options{
		Mode:             mode,
		LastHitWindow:    cfg.LastHitWindow,
		AllTargetsWindow: cfg.AllTargetsWindow,
		Clock:            a.clock,
	}, log)
	a.agg.SetLegacyMode(engine.LegacyMode(cfg.LegacyMode))

	a.flows = flow.New(a.store, flow.Options{
		MaxConcurrent: cfg.MaxFlows,
		OnChunk:       a.clock.Advance,
	}, log)

	log.Debug().
		Int("skills", cat.SkillCount()).
		Int("mobs", len(cat.Mobs())).
		Str("mode", string(mode)).
		Str("character", cfg.CharacterName).
		Msg("meter ready")
	return a, nil
}

// saveSettings writes the current selection and identity back to the config
// file, or to the default location if none was read.
func (a *app) saveSettings(mode engine.Mode, legacy engine.LegacyMode, name string, actorID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.SelectionMode = string(mode)
	a.cfg.LegacyMode = string(legacy)
	a.cfg.CharacterName = strings.TrimSpace(name)
	if actorID > 0 {
		a.cfg.KnownActorID = actorID
	}
	path := a.cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(path, a.cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	a.cfgPath = path
	return nil
}
