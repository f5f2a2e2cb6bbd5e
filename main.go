package main

import (
	"flipbook/auth"
	"flipbook/config"
	"flipbook/db"
	"flipbook/handlers"
	"flipbook/metrics"
	"flipbook/models"
	"flipbook/processing"
	"flipbook/storage"
	"flipbook/utils"
	"flipbook/web"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sessionCookieName = "token"
	viewerCacheTime   = 60
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println(config.Description())
		return
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	if cfg.DebugMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db.Init(cfg.MySQLDSN, cfg.SQLiteFile, cfg.DebugMode)
	if err = models.Init(); err != nil {
		log.Fatal().Err(err).Msg("Cannot migrate database")
	}

	// Where uploads go is decided once, here
	local := storage.NewDiskStorage(cfg.UploadDir, cfg.UploadURLPrefix)
	placers := []storage.Placer{local}
	var remote storage.Placer
	remoteAvailable := cfg.RemoteAvailable()
	if remoteAvailable {
		s3Storage, err := storage.NewS3Storage(cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot initialise S3 storage")
		}
		remote = s3Storage
		placers = append(placers, s3Storage)
	}
	log.Info().Bool("remote", remoteAvailable).Str("upload_dir", cfg.UploadDir).Msg("Storage ready")

	fileStore := models.NewFileStore(db.Instance)
	pipeline, err := processing.New(remote, local, remoteAvailable, fileStore, processing.Options{
		WindowSize:         cfg.Ingest.WindowSize,
		TranscodeThreshold: cfg.Ingest.TranscodeThreshold,
		Transcode: processing.TranscodeOptions{
			MaxDimension: cfg.Ingest.MaxDimension,
			Quality:      cfg.Ingest.Quality,
			MaxPixels:    cfg.Ingest.MaxPixels,
		},
		PlacementTimeout: cfg.Ingest.PlacementTimeout,
		PlacementRetries: cfg.Ingest.PlacementRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot create ingestion pipeline")
	}
	files := &handlers.Files{
		Pipeline:    pipeline,
		Store:       fileStore,
		Placers:     placers,
		MaxFiles:    cfg.Ingest.MaxFiles,
		MaxFileSize: cfg.Ingest.MaxFileSize,
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	_ = router.SetTrustedProxies([]string{})
	if cfg.DebugMode {
		router.Use(utils.ErrorLogMiddleware)
	}
	router.Use(metrics.Middleware)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PUT", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Album-Password"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           30 * 24 * time.Hour,
	}))

	sessionStore := gormsessions.NewStore(db.Instance, true, []byte(cfg.SessionKey))
	sessionStore.Options(sessions.Options{Path: "/", MaxAge: cfg.SessionMaxAge, HttpOnly: true})
	router.Use(sessions.Sessions(sessionCookieName, sessionStore))
	if !cfg.DebugMode {
		// Placed images are already compressed
		router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{cfg.UploadURLPrefix})))
	}
	router.Use(utils.CacheControl(utils.CacheNoCache)) // No cache by default, individual end-points can override that

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Custom Auth Router
	authRouter := &auth.Router{Base: router}
	// User handlers
	router.POST("/user/signup", handlers.UserSignup(cfg.SignupCredits))
	router.POST("/user/login", handlers.UserLogin)
	authRouter.POST("/user/logout", handlers.UserLogout)
	authRouter.GET("/user/status", handlers.UserStatus)
	// Album handlers
	authRouter.GET("/album/list", handlers.AlbumList)
	authRouter.GET("/album/get", handlers.AlbumGet)
	authRouter.POST("/album/create", handlers.AlbumCreate)
	authRouter.POST("/album/save", handlers.AlbumSave)
	authRouter.POST("/album/delete", files.DeleteAlbum)
	// Album files
	authRouter.POST("/albums/:id/files", files.Upload)
	authRouter.GET("/albums/:id/files", files.List)
	authRouter.DELETE("/albums/:id/files/:file", files.Delete)

	/*
	 *	Web interface
	 */
	router.GET("/w/album/:id/", utils.CacheControl(viewerCacheTime), web.AlbumView(fileStore))
	router.GET("/robots.txt", web.DisallowRobots)
	if !remoteAvailable {
		router.Static(cfg.UploadURLPrefix, cfg.UploadDir)
	}

	if cfg.TLSDomains != "" {
		err = autotls.Run(router, strings.Split(cfg.TLSDomains, ",")...)
	} else {
		err = router.Run(cfg.BindAddress)
	}
	log.Fatal().Err(err).Msg("Server stopped")
}
