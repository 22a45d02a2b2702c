package main

import (
	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/config"
	"github.com/airislabs/kassa/internal/migration"
	"github.com/airislabs/kassa/internal/observability"
	"github.com/airislabs/kassa/internal/server"
	"github.com/airislabs/kassa/pkg/db"
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
