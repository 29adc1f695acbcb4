package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Conversation is a live AI video session the user joins by URL.
type Conversation struct {
	ID  string
	URL string
}

// ConversationClient opens AI conversations with the video agent provider.
type ConversationClient struct {
	http *jsonClient
}

func NewConversationClient(baseURL, apiKey string, timeout time.Duration) *ConversationClient {
	return &ConversationClient{
		http: newJSONClient("conversation", baseURL, map[string]string{
			"x-api-key": apiKey,
		}, timeout),
	}
}

type createConversationRequest struct {
	ReplicaID             string `json:"replica_id"`
	ConversationName      string `json:"conversation_name"`
	ConversationalContext string `json:"conversational_context"`
}

type createConversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
}

func (c *ConversationClient) CreateConversation(ctx context.Context, replicaID, name, conversationalContext string) (Conversation, error) {
	req := createConversationRequest{
		ReplicaID:             replicaID,
		ConversationName:      name,
		ConversationalContext: conversationalContext,
	}

	var resp createConversationResponse
	if err := c.http.do(ctx, "create conversation", http.MethodPost, "/conversations", req, &resp); err != nil {
		return Conversation{}, err
	}
	if resp.ConversationID == "" || resp.ConversationURL == "" {
		return Conversation{}, &Error{Service: "conversation", Op: "create conversation", Err: fmt.Errorf("response missing conversation id or url")}
	}
	return Conversation{ID: resp.ConversationID, URL: resp.ConversationURL}, nil
}
