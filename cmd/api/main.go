package main

import (
	"strconv"
	"time"

	"github.com/Bree-codes/SuperMartConnect/internal/config"
	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	"github.com/Bree-codes/SuperMartConnect/internal/handler"
	"github.com/Bree-codes/SuperMartConnect/internal/infra/db"
	infraRepo "github.com/Bree-codes/SuperMartConnect/internal/infra/repository"
	"github.com/Bree-codes/SuperMartConnect/internal/live"
	"github.com/Bree-codes/SuperMartConnect/internal/payment"
	"github.com/Bree-codes/SuperMartConnect/internal/server"
	"github.com/Bree-codes/SuperMartConnect/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type jwtIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

func (i *jwtIssuer) Issue(userID int64, role model.Role, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.accessTTL)

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// 空のときだけ初期在庫を入れる
func seedInventory(gormDB *gorm.DB) error {
	var count int64
	if err := gormDB.Model(&model.InventoryItem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []model.InventoryItem{
		{Branch: "Kisumu", Product: "Coke", Price: 100, Stock: 50},
		{Branch: "Kisumu", Product: "Fanta", Price: 100, Stock: 30},
		{Branch: "Mombasa", Product: "Sprite", Price: 100, Stock: 45},
		{Branch: "Nairobi", Product: "Coke", Price: 120, Stock: 100},
	}
	return gormDB.Create(&seed).Error
}

func main() {
	//.envは無くてもよい（本番は実環境変数）
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.InventoryItem{},
		&model.SaleEvent{},
		&model.Checkout{},
		&model.CheckoutLine{},
		&model.InventoryAdjustment{},
	); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	if err := seedInventory(gormDB); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	saleRepo := infraRepo.NewSaleGormRepository(gormDB)
	checkoutRepo := infraRepo.NewCheckoutGormRepository(gormDB)
	lineRepo := infraRepo.NewCheckoutLineGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//ライブ配信
	hub := live.NewHub(logger)

	//決済
	mpesa := payment.NewMpesaClient(cfg, logger)

	//JWT issuer
	issuer := &jwtIssuer{
		secret:    []byte(cfg.JWTSecret),
		accessTTL: 15 * time.Minute,
	}

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, issuer, 12, logger)
	inventoryUC := usecase.NewInventoryUsecase(inventoryRepo, hub, logger)
	checkoutUC := usecase.NewCheckoutUsecase(
		txManager, inventoryRepo, checkoutRepo, lineRepo,
		mpesa, hub, cfg.PaymentTimeout, logger,
	)
	reportUC := usecase.NewReportUsecase(saleRepo, logger)

	//Handler生成
	handlers := server.Handlers{
		Auth:      handler.NewAuthHandler(authUC),
		Inventory: handler.NewInventoryHandler(inventoryUC),
		Checkout:  handler.NewCheckoutHandler(checkoutUC),
		Sales:     handler.NewSalesHandler(reportUC),
		Mpesa:     handler.NewMpesaHandler(mpesa, logger),
		Live:      live.NewHandler(hub, cfg, logger),
	}

	e := server.New(cfg, handlers)

	addr := ":" + cfg.Port
	logger.Info("server starting", zap.String("addr", addr))
	if err := server.Start(e, addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
