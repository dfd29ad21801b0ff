// Package sundaegql provides GraphQL server utilities: relay construction,
// GraphiQL mounting, schema merging, a JSON scalar and introspection
// controls.
package sundaegql

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
)

func AllowIntrospection() bool {
	return sundaecli.CommonOpts.Network != "mainnet" || sundaecli.CommonOpts.Console
}

type Resolver interface {
	Schema() string
	Config() *BaseConfig
}
