package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

// ProfessionalTopic carries professionals announced by the clinic registry.
const ProfessionalTopic = "clinic.professional.upserted.v1"

type ProfessionalEvent struct {
	TenantID       string `json:"tenant_id"`
	ProfessionalID string `json:"professional_id"`
	DisplayName    string `json:"display_name"`
}

type Registrar interface {
	UpsertProfessional(ctx context.Context, tenantID, professionalID, displayName string) error
}

// ProfessionalHandler registers announced professionals. Malformed events are
// logged and dropped so they are not retried forever.
func ProfessionalHandler(store Registrar, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt ProfessionalEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Warn("invalid professional event", "err", err, "offset", msg.Offset)
			return nil
		}
		evt.TenantID = strings.TrimSpace(evt.TenantID)
		evt.ProfessionalID = strings.TrimSpace(evt.ProfessionalID)
		if evt.TenantID == "" || evt.ProfessionalID == "" {
			logger.Warn("professional event missing ids", "offset", msg.Offset)
			return nil
		}
		if err := store.UpsertProfessional(ctx, evt.TenantID, evt.ProfessionalID, strings.TrimSpace(evt.DisplayName)); err != nil {
			return err
		}
		logger.Info("professional registered", "tenant_id", evt.TenantID, "professional_id", evt.ProfessionalID)
		return nil
	}
}
