package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/pkg/file"
	"github.com/voltbridge/battery-relay/pkg/identity"
	"github.com/voltbridge/battery-relay/pkg/registration"
)

func main() {
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: register <path_to_device_artifacts> <registration_base_url>")
		os.Exit(1)
	}

	artifactsDir := flag.Arg(0)
	baseURL := flag.Arg(1)

	fileClient := file.NewFileService()

	deviceInfo := identity.NewDeviceInfo(artifactsDir, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}

	privateKey, err := fileClient.ReadFileRaw(deviceInfo.PrivateKeyPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read device private key")
	}

	url, err := registration.BuildURL(baseURL, deviceInfo.GetThingName(), privateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build registration URL")
	}

	fmt.Println(url)
}
