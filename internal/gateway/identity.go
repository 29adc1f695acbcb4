package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Inquiry statuses reported by the identity provider.
const (
	InquiryCreated     = "created"
	InquiryPending     = "pending"
	InquiryNeedsReview = "needs_review"
	InquiryCompleted   = "completed"
)

// IdentityClient talks to the document and selfie verification provider.
type IdentityClient struct {
	http *jsonClient
}

func NewIdentityClient(baseURL, apiKey, version string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		http: newJSONClient("identity", baseURL, map[string]string{
			"Authorization":   "Bearer " + apiKey,
			"Persona-Version": version,
		}, timeout),
	}
}

type inquiryEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status      string `json:"status"`
			ReferenceID string `json:"reference-id"`
		} `json:"attributes"`
	} `json:"data"`
	Meta map[string]any `json:"meta"`
}

// CreateInquiry opens a verification inquiry tagged with referenceID and
// returns its id.
func (c *IdentityClient) CreateInquiry(ctx context.Context, referenceID string) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"reference-id": referenceID,
			},
		},
	}

	var resp inquiryEnvelope
	if err := c.http.do(ctx, "create inquiry", http.MethodPost, "/inquiries", body, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &Error{Service: "identity", Op: "create inquiry", Err: fmt.Errorf("response missing inquiry id")}
	}
	return resp.Data.ID, nil
}

// GenerateAccessLink returns a one-time link the user follows to complete the
// inquiry. The short form is preferred when the provider returns both.
func (c *IdentityClient) GenerateAccessLink(ctx context.Context, inquiryID string) (string, error) {
	var resp inquiryEnvelope
	path := "/inquiries/" + url.PathEscape(inquiryID) + "/generate-one-time-link"
	if err := c.http.do(ctx, "generate link", http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	for _, key := range []string{"one-time-link-short", "one-time-link"} {
		if link, ok := resp.Meta[key].(string); ok && link != "" {
			return link, nil
		}
	}
	return "", &Error{Service: "identity", Op: "generate link", Err: fmt.Errorf("response missing one-time link")}
}

// GetStatus returns the inquiry's current status string.
func (c *IdentityClient) GetStatus(ctx context.Context, inquiryID string) (string, error) {
	var resp inquiryEnvelope
	if err := c.http.do(ctx, "get inquiry", http.MethodGet, "/inquiries/"+url.PathEscape(inquiryID), nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.Attributes.Status == "" {
		return "", &Error{Service: "identity", Op: "get inquiry", Err: fmt.Errorf("response missing status")}
	}
	return resp.Data.Attributes.Status, nil
}
