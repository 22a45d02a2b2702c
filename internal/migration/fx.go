package migration

import (
	catalogdomain "github.com/airislabs/kassa/internal/catalog/domain"
	"github.com/airislabs/kassa/internal/config"
	leadmagnetdomain "github.com/airislabs/kassa/internal/leadmagnet/domain"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/airislabs/kassa/internal/seed"
	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres targets (sqlite for dev and tests) derive the
			// schema from the models.
			if err := conn.AutoMigrate(
				&walletdomain.Wallet{},
				&walletdomain.LedgerEntry{},
				&pricingdomain.RateCard{},
				&catalogdomain.Model{},
				&leadmagnetdomain.State{},
				&usageeventdomain.UsageEvent{},
				&paymentdomain.Payment{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultRateCards(conn)
	}),
)
