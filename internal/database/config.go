package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	appConfig "github.com/imyashkale/mcphub/internal/config"
	"github.com/imyashkale/mcphub/internal/logger"
)

// Config holds the DynamoDB configuration
type Config struct {
	Region string
	Tables map[string]string
}

// Client wraps the DynamoDB client
type Client struct {
	DynamoDB *dynamodb.Client
	Tables   map[string]string
}

// NewConfig creates a new database configuration from the application config
func NewConfig(appCfg *appConfig.Config) *Config {
	return &Config{
		Region: appCfg.AWSRegion,
		Tables: map[string]string{
			TableServers:  appCfg.DynamoDBServersTable,
			TableProfiles: appCfg.DynamoDBProfilesTable,
		},
	}
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	for logical, table := range cfg.Tables {
		if err := ensureTableExists(ctx, dynamoClient, table); err != nil {
			logger.WithFields(map[string]interface{}{
				"table":  logical,
				"dynamo": table,
				"error":  err.Error(),
			}).Warn("Could not verify table existence")
		}
	}

	return &Client{
		DynamoDB: dynamoClient,
		Tables:   cfg.Tables,
	}, nil
}

// Store returns a RowStore backed by this client
func (c *Client) Store() *DynamoStore {
	return NewDynamoStore(c.DynamoDB, c.Tables)
}

// ensureTableExists checks if the DynamoDB table exists
func ensureTableExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", tableName, err)
	}

	logger.WithField("table", tableName).Debug("DynamoDB table verified successfully")
	return nil
}
