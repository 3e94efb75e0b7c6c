package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func CampaignStatusKey(campaignID uuid.UUID) string {
	return fmt.Sprintf("campaign:%s", campaignID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
