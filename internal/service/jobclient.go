package service

import (
	"orgmedia/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling post-processing of stored files
type JobClient interface {
	EnqueueChecksum(itemID int64, key string) error
	EnqueueThumbnail(itemID int64, key string) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) EnqueueChecksum(itemID int64, key string) error {
	return jobs.EnqueueChecksum(c.client, itemID, key)
}

func (c *AsynqJobClient) EnqueueThumbnail(itemID int64, key string) error {
	return jobs.EnqueueThumbnail(c.client, itemID, key)
}
