package main

import (
	"fmt"
	"log"

	"schemabench/internal/config"
	"schemabench/internal/db"
	"schemabench/internal/router"
	"schemabench/internal/service"
)

func main() {
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("init database: %v", err)
	}

	svcCtx := service.NewServiceContext(cfg)

	r := router.SetupRouter(svcCtx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
