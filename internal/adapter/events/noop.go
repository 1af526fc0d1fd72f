// Package events holds the no-op detection publisher used when no broker
// is configured.
package events

import (
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// NopPublisher satisfies domain.DetectionPublisher and drops every event.
type NopPublisher struct{}

// PublishDetection does nothing.
func (NopPublisher) PublishDetection(domain.Context, domain.DetectionEvent) error { return nil }
