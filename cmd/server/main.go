package main

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/gin-gonic/gin"

	"kutter-server/internal/auth"
	"kutter-server/internal/config"
	"kutter-server/internal/logging"
	"kutter-server/internal/mailer"
	"kutter-server/internal/server"
	"kutter-server/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logFile := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if logFile != nil {
		defer logFile.Close()
	}

	gin.SetMode(cfg.GinMode)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "kutter-server",
	}

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPUser, cfg.SMTPPassword)
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		Mailer:      mail,
	})

	slog.Info("listening", "addr", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
