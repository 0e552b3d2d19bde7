package main

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5"

	"github.com/pk65arya/PayoutAutomationSystem/internal/config"
	"github.com/pk65arya/PayoutAutomationSystem/internal/database"
	"github.com/pk65arya/PayoutAutomationSystem/internal/models"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/routes"
	"github.com/pk65arya/PayoutAutomationSystem/pkg/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	if err := seedUsers(context.Background(), cfg); err != nil {
		log.Fatalf("Failed to seed default users: %v", err)
	}

	app := fiber.New()

	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(app, cfg, database.DB); err != nil {
		log.Fatalf("Failed to register routes: %v", err)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// seedUsers creates the bootstrap admin and mentor accounts when the seed
// envs are set and no account with that username exists yet.
func seedUsers(ctx context.Context, cfg *config.Config) error {
	userRepo := repository.NewUserRepository(database.DB)

	if err := seedUser(ctx, userRepo, cfg.SeedAdminUsername, cfg.SeedAdminEmail,
		cfg.SeedAdminPassword, "Administrator", models.RoleAdmin); err != nil {
		return err
	}
	return seedUser(ctx, userRepo, cfg.SeedMentorUsername, cfg.SeedMentorEmail,
		cfg.SeedMentorPassword, "Demo Mentor", models.RoleMentor)
}

func seedUser(ctx context.Context, userRepo *repository.UserRepository, username, email, password, fullName, role string) error {
	if username == "" || email == "" || password == "" {
		return nil
	}

	if _, err := userRepo.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		return err
	}

	log.Printf("Seeded %s user %s", role, username)
	return nil
}
