package test

import (
	"context"

	"github.com/redis/go-redis/v9"

	teamgate "github.com/avrelium/teamgate"
	"github.com/avrelium/teamgate/store/sqlite"
)

// ExampleNew demonstrates engine construction with production-style
// dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	db, _ := sqlite.Open("/var/lib/teamgate/teamgate.db")

	cfg, _ := teamgate.ConfigFromEnv()
	engine, _ := teamgate.New().
		WithConfig(cfg).
		WithStore(db).
		WithRedis(rdb).
		Build()
	_ = engine
}

// ExampleEngine_Login shows a typical sign-in call and outcome handling.
func ExampleEngine_Login() {
	var engine *teamgate.Engine

	result, err := engine.Login(context.Background(), &teamgate.LoginCommand{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		return
	}

	switch {
	case result.Succeeded():
		_ = result.Value.Credential.Token
	case result.Value.Step == teamgate.StepMfaRequired:
		_ = result.Value.Mfa.Provider
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *teamgate.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[teamgate.MetricLoginSuccess]
}
