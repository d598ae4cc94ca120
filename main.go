package main

import (
	"github.com/pinkhuff/blog-api/config"
	"github.com/pinkhuff/blog-api/models"
	"github.com/pinkhuff/blog-api/routes"
	"github.com/pinkhuff/blog-api/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.Post{})

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
