package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
)

// Job type tags. Each tag has exactly one payload shape.
const (
	JobTypeProjectDevelopment = "project-development"
	JobTypeQuoteGeneration    = "quote-generation"
	JobTypeInvoiceRender      = "invoice-render"
)

// Payload is implemented by every job payload shape.
type Payload interface {
	JobType() string
	Validate() error
}

type ProjectDevelopmentPayload struct {
	ProjectID    string   `json:"projectId"`
	ClientID     string   `json:"clientId"`
	Title        string   `json:"title"`
	Requirements []string `json:"requirements,omitempty"`
	Budget       float64  `json:"budget,omitempty"`
}

func (ProjectDevelopmentPayload) JobType() string { return JobTypeProjectDevelopment }

func (p ProjectDevelopmentPayload) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ProjectID) == "" {
		errs = append(errs, errors.New("projectId is required"))
	}
	if strings.TrimSpace(p.ClientID) == "" {
		errs = append(errs, errors.New("clientId is required"))
	}
	if p.Budget < 0 {
		errs = append(errs, errors.New("budget must not be negative"))
	}
	return errors.Join(errs...)
}

type QuoteGenerationPayload struct {
	QuoteID     string `json:"quoteId"`
	ProjectID   string `json:"projectId"`
	Description string `json:"description"`
}

func (QuoteGenerationPayload) JobType() string { return JobTypeQuoteGeneration }

func (p QuoteGenerationPayload) Validate() error {
	var errs []error
	if strings.TrimSpace(p.QuoteID) == "" {
		errs = append(errs, errors.New("quoteId is required"))
	}
	if strings.TrimSpace(p.Description) == "" {
		errs = append(errs, errors.New("description is required"))
	}
	return errors.Join(errs...)
}

type InvoiceRenderPayload struct {
	InvoiceID string `json:"invoiceId"`
	ClientID  string `json:"clientId"`
}

func (InvoiceRenderPayload) JobType() string { return JobTypeInvoiceRender }

func (p InvoiceRenderPayload) Validate() error {
	if strings.TrimSpace(p.InvoiceID) == "" {
		return errors.New("invoiceId is required")
	}
	return nil
}

// DecodePayload resolves the payload shape for jobType and validates raw against it.
func DecodePayload(jobType string, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch jobType {
	case JobTypeProjectDevelopment:
		var v ProjectDevelopmentPayload
		if err := unmarshalStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case JobTypeQuoteGeneration:
		var v QuoteGenerationPayload
		if err := unmarshalStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case JobTypeInvoiceRender:
		var v InvoiceRenderPayload
		if err := unmarshalStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", custom_errors.ErrUnknownJobType, jobType)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", custom_errors.ErrInvalidPayload, jobType, err)
	}
	return p, nil
}

func unmarshalStrict(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", custom_errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	}
	return nil
}
