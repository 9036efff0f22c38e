package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// DefaultRetries is how many times a rate-limited Notion call is retried.
const DefaultRetries = 3

// NotionClient talks to the Notion API on behalf of the mirror.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a client for the integration token. Rate-limited
// calls are retried DefaultRetries times.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token), notionapi.WithRetry(DefaultRetries)),
	}
}

// CreatePage adds a row page to the mirror database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase returns one page of the database's rows.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// DeletePage archives a page. Notion has no hard delete through the API.
func (n *NotionClient) DeletePage(ctx context.Context, pageID string) error {
	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("DeletePage: %w", err)
	}
	return nil
}

// MissingProperties lists the mirror columns the database lacks.
func (n *NotionClient) MissingProperties(ctx context.Context, databaseID string) ([]string, error) {
	db, err := n.client.Database.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return nil, fmt.Errorf("MissingProperties: %w", err)
	}
	return missingProperties(db.Properties), nil
}

var _ NotionService = (*NotionClient)(nil)
