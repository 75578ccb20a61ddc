package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// DynamoPublisher stores one item per job with flat per-domain attributes
// (<domain>_status, <domain>_total, <domain>_processed, <domain>_error) so
// counters update atomically via ADD expressions.
type DynamoPublisher struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoPublisher creates a DynamoDB-backed publisher and ensures the
// table exists (for local testing with DynamoDB Local).
func NewDynamoPublisher(cfg config.ProgressConfig) (*DynamoPublisher, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	p := &DynamoPublisher{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	if err := p.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}

	return p, nil
}

func (p *DynamoPublisher) ensureTable() error {
	_, err := p.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(p.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("job_id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("job_id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := p.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return p.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	})
}

func (p *DynamoPublisher) InitDomain(ctx context.Context, jobID, domain string) error {
	_, err := p.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(p.tableName),
		Key:       p.key(jobID),
		UpdateExpression: aws.String(
			"SET #status = :status, #total = :zero, #processed = :zero, #err = :empty, " +
				"updated_at = :t, created_at = if_not_exists(created_at, :t)"),
		ExpressionAttributeNames: map[string]*string{
			"#status":    aws.String(domain + "_status"),
			"#total":     aws.String(domain + "_total"),
			"#processed": aws.String(domain + "_processed"),
			"#err":       aws.String(domain + "_error"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":status": {S: aws.String(models.StatusPending)},
			":zero":   {N: aws.String("0")},
			":empty":  {S: aws.String("")},
			":t":      {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to reset domain %s for job %s: %w", domain, jobID, err)
	}
	return nil
}

func (p *DynamoPublisher) SetStatus(ctx context.Context, jobID, domain, status string) error {
	return p.update(ctx, jobID, domain+"_status", &dynamodb.AttributeValue{S: aws.String(status)})
}

func (p *DynamoPublisher) SetTotal(ctx context.Context, jobID, domain string, n int) error {
	return p.update(ctx, jobID, domain+"_total", &dynamodb.AttributeValue{N: aws.String(strconv.Itoa(n))})
}

func (p *DynamoPublisher) IncrementProcessed(ctx context.Context, jobID, domain string, n int) error {
	_, err := p.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(p.tableName),
		Key:       p.key(jobID),
		UpdateExpression: aws.String(
			"ADD #attr :n SET updated_at = :t, created_at = if_not_exists(created_at, :t)"),
		ExpressionAttributeNames: map[string]*string{
			"#attr": aws.String(domain + "_processed"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":n": {N: aws.String(strconv.Itoa(n))},
			":t": {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to increment processed count: %w", err)
	}
	return nil
}

func (p *DynamoPublisher) SetError(ctx context.Context, jobID, domain, message string) error {
	return p.update(ctx, jobID, domain+"_error", &dynamodb.AttributeValue{S: aws.String(message)})
}

func (p *DynamoPublisher) Snapshot(ctx context.Context, jobID string) (*models.JobStatus, error) {
	result, err := p.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.tableName),
		Key:       p.key(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if result.Item == nil {
		return nil, ErrJobNotFound
	}

	domains := make(map[string]models.DomainStatus)
	for _, domain := range models.AllDomains() {
		status := itemString(result.Item, domain+"_status")
		if status == "" {
			continue
		}
		d := models.DomainStatus{
			Status:    status,
			Total:     itemInt(result.Item, domain+"_total"),
			Processed: itemInt(result.Item, domain+"_processed"),
			Error:     itemString(result.Item, domain+"_error"),
		}
		d.Extracted = d.Status == models.StatusCompleted && d.Processed > 0
		domains[domain] = d
	}

	return &models.JobStatus{
		JobID:         jobID,
		OverallStatus: models.DeriveOverall(domains),
		Domains:       domains,
		CreatedAt:     itemTime(result.Item, "created_at"),
		UpdatedAt:     itemTime(result.Item, "updated_at"),
	}, nil
}

// Close is a no-op; the DynamoDB client needs no explicit closing.
func (p *DynamoPublisher) Close(ctx context.Context) error { return nil }

func (p *DynamoPublisher) update(ctx context.Context, jobID, attr string, value *dynamodb.AttributeValue) error {
	_, err := p.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(p.tableName),
		Key:       p.key(jobID),
		UpdateExpression: aws.String(
			"SET #attr = :v, updated_at = :t, created_at = if_not_exists(created_at, :t)"),
		ExpressionAttributeNames: map[string]*string{
			"#attr": aws.String(attr),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":v": value,
			":t": {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

func (p *DynamoPublisher) key(jobID string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"job_id": {S: aws.String(jobID)},
	}
}

func itemString(item map[string]*dynamodb.AttributeValue, attr string) string {
	if v, ok := item[attr]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func itemInt(item map[string]*dynamodb.AttributeValue, attr string) int {
	if v, ok := item[attr]; ok && v.N != nil {
		if n, err := strconv.Atoi(*v.N); err == nil {
			return n
		}
	}
	return 0
}

func itemTime(item map[string]*dynamodb.AttributeValue, attr string) time.Time {
	if v, ok := item[attr]; ok && v.S != nil {
		if t, err := time.Parse(time.RFC3339, *v.S); err == nil {
			return t
		}
	}
	return time.Time{}
}
