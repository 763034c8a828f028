package main

import (
	"log"
	"os"
	"time"

	"chainbill-backend/config"
	"chainbill-backend/database"
	sessionsapi "chainbill-backend/internal/api/sessions"
	subscriptionsapi "chainbill-backend/internal/api/subscriptions"
	routes "chainbill-backend/internal/app/http"
	"chainbill-backend/internal/infra/chain"
	"chainbill-backend/internal/nonce"
	"chainbill-backend/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	config.LoadEnv()
	database.InitDB()

	verifier, err := chain.Dial(config.CHAIN_RPC_URL)
	if err != nil {
		log.Fatal("Failed to connect to chain RPC:", err)
	}
	subscriptionsapi.Init(verifier)
	sessionsapi.Init(session.NewStore(session.DefaultRetention))

	var nonceStore nonce.Store
	if config.REDIS_ADDR != "" {
		nonceStore = nonce.NewRedisStore(config.REDIS_ADDR, nonce.DefaultTTL)
	} else {
		nonceStore = nonce.NewMemoryStore(nonce.DefaultTTL)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("CORS_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, nonceStore)

	r.Run(":" + config.PORT)
}
