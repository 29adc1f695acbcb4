package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// CaseRequest asks the decision oracle to adjudicate a claim. Numeric ids are
// sent as decimal strings.
type CaseRequest struct {
	PolicyID       string       `json:"policyId"`
	CaseID         string       `json:"oracleSystemClaimId"`
	ConversationID string       `json:"tavusConversationId"`
	UserID         string       `json:"userId"`
	ClaimDetails   ClaimDetails `json:"claimDetails"`
}

type ClaimDetails struct {
	Description string `json:"description"`
}

// OracleClient submits claim cases. The oracle answers asynchronously by
// writing its decision to the ledger.
type OracleClient struct {
	http *jsonClient
}

func NewOracleClient(endpoint string, timeout time.Duration) *OracleClient {
	return &OracleClient{
		http: newJSONClient("oracle", endpoint, nil, timeout),
	}
}

// SubmitCase posts the case and returns the oracle's raw acknowledgment.
func (c *OracleClient) SubmitCase(ctx context.Context, req CaseRequest) (json.RawMessage, error) {
	var ack json.RawMessage
	if err := c.http.do(ctx, "submit case", http.MethodPost, "", req, &ack); err != nil {
		return nil, err
	}
	return ack, nil
}
