package service

import (
	"context"

	"github.com/promtec/orientation-api/internal/dto"
)

// Notifier delivers outbound messages. Implementations must be safe for
// concurrent use; callers never block a request or a transaction on delivery.
type Notifier interface {
	SendConfirmation(ctx context.Context, confirmation dto.SchoolConfirmation, summary dto.ConfirmationSummary) error
	SendEnrollmentSummary(ctx context.Context, summary dto.EnrollmentSummary) error
}
