package sundaeslide

import (
	"fmt"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/urfave/cli/v2"
)

const (
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

var SlideOpts struct {
	Store       string
	IdleTimeout time.Duration
	SendBuffer  int
	ConnTTL     time.Duration
	StreamName  string
	Publish     bool
	Metrics     bool
}

var StoreFlag = sundaecli.StringFlag("store", "Backing store for feedback, connections and presentations (sqlite or dynamodb)", &SlideOpts.Store, StoreSQLite)
var IdleTimeoutFlag = sundaecli.DurationFlag("idle-timeout", "Hibernate a slide coordinator after this long without activity; 0 disables", &SlideOpts.IdleTimeout, 10*time.Minute)
var SendBufferFlag = sundaecli.IntFlag("send-buffer", "Frames queued per connection before it is dropped", &SlideOpts.SendBuffer, 64)
var ConnTTLFlag = sundaecli.DurationFlag("connection-ttl", "How long a connection record is kept before the sweep removes it", &SlideOpts.ConnTTL, 2*time.Hour)
var StreamNameFlag = sundaecli.StringFlag("stream-name", "Kinesis stream feedback events are published to; defaults to the environment's stream", &SlideOpts.StreamName)
var PublishFlag = sundaecli.BoolFlag("publish", "Publish recorded reactions to Kinesis", &SlideOpts.Publish)
var MetricsFlag = sundaecli.BoolFlag("metrics", "Publish CloudWatch metrics", &SlideOpts.Metrics)

var SlideFlags = []cli.Flag{
	StoreFlag,
	IdleTimeoutFlag,
	SendBufferFlag,
	ConnTTLFlag,
	StreamNameFlag,
	PublishFlag,
	MetricsFlag,
}

// ValidateStore checks the --store value.
func ValidateStore(store string) error {
	switch store {
	case StoreSQLite, StoreDynamoDB:
		return nil
	}
	return fmt.Errorf("unknown store %q; expected %v or %v", store, StoreSQLite, StoreDynamoDB)
}
