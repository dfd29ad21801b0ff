package sundaegql

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/rs/zerolog"
)

type BaseConfig struct {
	Logger  zerolog.Logger
	Service sundaecli.Service
}

func NewConfig(service sundaecli.Service) BaseConfig {
	return BaseConfig{
		Logger:  sundaecli.Logger(service).With().Str("component", "graphql").Logger(),
		Service: service,
	}
}
