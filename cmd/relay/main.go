package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/api"
	"github.com/voltbridge/battery-relay/internal/keyregistry"
	"github.com/voltbridge/battery-relay/internal/ledger"
	"github.com/voltbridge/battery-relay/internal/partner"
	"github.com/voltbridge/battery-relay/internal/relay"
	"github.com/voltbridge/battery-relay/internal/utils"
	"github.com/voltbridge/battery-relay/pkg/file"
	"github.com/voltbridge/battery-relay/pkg/mqtt"
	"github.com/voltbridge/battery-relay/pkg/registration"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to the relay configuration file")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Secrets come from the environment; .env is a development convenience.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using process environment")
	}

	fileClient := file.NewFileService()

	config, err := utils.LoadRelayConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	connector := buildConnector(config, log)
	repo, err := ledger.NewCommandRepository(connector, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open command ledger")
	}

	clientID := config.MQTT.ClientID + "-" + uuid.New().String()
	log.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

	mqttClient := mqtt.NewMqttService(fileClient, log)
	if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	partnerToken := os.Getenv("PARTNER_API_TOKEN")
	if partnerToken == "" {
		log.Fatal().Msg("PARTNER_API_TOKEN is not set")
	}
	notifier := partner.NewClient(config.Partner.BaseURL, partnerToken, nil, log)

	relaySvc := relay.NewService(repo, notifier, mqttClient, config.MQTT.QOS, log)

	keys := keyregistry.NewDirectoryRegistry(config.KeyRegistry.CertificatesDir, fileClient, log)
	verifier := registration.NewVerifier(keys)

	router := api.RegisterHandlers(chi.NewRouter(), log, relaySvc, verifier)

	log.Info().Str("address", config.HTTP.Address).Msg("Relay server listening")
	if err := http.ListenAndServe(config.HTTP.Address, router); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}

// buildConnector picks the ledger database from configuration. PostgreSQL
// reads its DSN from the environment; anything else falls back to SQLite.
func buildConnector(config *utils.RelayConfig, log zerolog.Logger) ledger.ConnectorFunc {
	if config.Database.Driver == "postgres" {
		dsn := os.Getenv("DATABASE_DSN")
		if dsn == "" {
			log.Fatal().Msg("DATABASE_DSN is not set")
		}
		return ledger.NewPostgreSQLConnector(dsn, log)
	}

	dsn := os.Getenv("SQLITE_PATH")
	if dsn == "" {
		dsn = "relay.db"
	}
	return ledger.NewSQLiteConnector(dsn)
}
