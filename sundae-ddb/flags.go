package sundaeddb

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	Endpoint   string
	Region     string
}

var DAXClusterFlag = sundaecli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var EndpointFlag = sundaecli.StringFlag("dynamodb-endpoint", "Override the DynamoDB endpoint, e.g. http://localhost:8000 for DynamoDB Local", &DDBOpts.Endpoint)
var RegionFlag = sundaecli.StringFlag("region", "The AWS region hosting the tables", &DDBOpts.Region, "us-east-2")

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	EndpointFlag,
	RegionFlag,
}
