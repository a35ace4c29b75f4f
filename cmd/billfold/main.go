package main

import (
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	"github.com/billfold/billfold/internal/migration"
	"github.com/billfold/billfold/internal/observability"
	"github.com/billfold/billfold/internal/scheduler"
	"github.com/billfold/billfold/internal/server"
	"github.com/billfold/billfold/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
