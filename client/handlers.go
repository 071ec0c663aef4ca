package client

import (
	"context"
	"log/slog"

	"github.com/RezaEskandarii/tickqueue/internal/registry"
	"github.com/RezaEskandarii/tickqueue/types"
)

// ProjectDeveloper performs the long-running "develop this project" work.
type ProjectDeveloper interface {
	Develop(ctx context.Context, p types.ProjectDevelopmentPayload) (any, error)
}

type QuoteGenerator interface {
	GenerateQuote(ctx context.Context, p types.QuoteGenerationPayload) (any, error)
}

type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, p types.InvoiceRenderPayload) (any, error)
}

// Collaborators are the external services the built-in job types delegate to.
type Collaborators struct {
	Developer ProjectDeveloper
	Quotes    QuoteGenerator
	Invoices  InvoiceRenderer
}

// RegisterHandlers registers one typed handler per built-in job type. Nil
// collaborators fall back to LoggingCollaborator. Safe to call repeatedly.
func RegisterHandlers(r *registry.Registry, c Collaborators, logger *slog.Logger) error {
	fallback := LoggingCollaborator{Logger: logger}
	if c.Developer == nil {
		c.Developer = fallback
	}
	if c.Quotes == nil {
		c.Quotes = fallback
	}
	if c.Invoices == nil {
		c.Invoices = fallback
	}

	if err := registry.RegisterTyped(r, types.JobTypeProjectDevelopment, c.Developer.Develop); err != nil {
		return err
	}
	if err := registry.RegisterTyped(r, types.JobTypeQuoteGeneration, c.Quotes.GenerateQuote); err != nil {
		return err
	}
	return registry.RegisterTyped(r, types.JobTypeInvoiceRender, c.Invoices.RenderInvoice)
}

// LoggingCollaborator records the work it was asked to do and succeeds.
// It stands in for the real services in development and demos.
type LoggingCollaborator struct {
	Logger *slog.Logger
}

func (l LoggingCollaborator) log() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LoggingCollaborator) Develop(_ context.Context, p types.ProjectDevelopmentPayload) (any, error) {
	l.log().Info("developing project",
		slog.String("project_id", p.ProjectID),
		slog.String("client_id", p.ClientID),
		slog.Int("requirements", len(p.Requirements)),
	)
	return map[string]string{"projectId": p.ProjectID, "status": "developed"}, nil
}

func (l LoggingCollaborator) GenerateQuote(_ context.Context, p types.QuoteGenerationPayload) (any, error) {
	l.log().Info("generating quote", slog.String("quote_id", p.QuoteID), slog.String("project_id", p.ProjectID))
	return map[string]string{"quoteId": p.QuoteID}, nil
}

func (l LoggingCollaborator) RenderInvoice(_ context.Context, p types.InvoiceRenderPayload) (any, error) {
	l.log().Info("rendering invoice", slog.String("invoice_id", p.InvoiceID))
	return map[string]string{"invoiceId": p.InvoiceID}, nil
}
